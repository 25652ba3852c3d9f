// Package health runs a periodic synthetic query against the currently
// active provider and reports failures as notifications. It never drives
// the control state machine directly; control decides for itself, on its
// own Start/Switch test query, whether a provider is usable. Health only
// watches for a previously-good provider going bad between those events.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/notifications"
	"github.com/safing/sdfw/dnswire"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
)

// DefaultInterval is how often Monitor probes the active provider when no
// other interval is configured.
const DefaultInterval = 30 * time.Second

const (
	probeTimeout  = 5 * time.Second
	probeDomain   = "example.com."
	eventIDHealth = "health:probe-failed"
)

// queryer issues a DNS query against a specific provider. Implemented by
// *upstream.Transport.
type queryer interface {
	Query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error)
}

// activeProviderSource reports the provider currently being relayed
// through. Implemented by *forwarder.Forwarder.
type activeProviderSource interface {
	ActiveProvider() *model.Provider
}

// Monitor periodically probes the active provider and reports whether it
// is still answering.
type Monitor struct {
	transport queryer
	source    activeProviderSource
	interval  time.Duration

	ticker *mgr.SleepyTicker

	// lastHealthy is used only to avoid re-notifying on every consecutive
	// failure; it is not authoritative state for anything else.
	lastHealthy bool

	// OnProbe, if set, is called after every probe attempt with its result
	// and completion time. The IPC server uses it to populate
	// GetStatus.lastHealthCheck.
	OnProbe func(healthy bool, at time.Time)
}

// New returns a Monitor that probes through transport at the given
// interval. An interval of zero uses DefaultInterval.
func New(transport queryer, source activeProviderSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		transport:   transport,
		source:      source,
		interval:    interval,
		lastHealthy: true,
	}
}

// Start launches the probe loop. It satisfies mgr.Module.
func (m *Monitor) Start(mgrMgr *mgr.Manager) error {
	m.ticker = mgr.NewSleepyTicker(m.interval, 0)

	mgrMgr.Go("health probe", func(w *mgr.WorkerCtx) error {
		for {
			select {
			case <-w.Done():
				return nil
			case <-m.ticker.Wait():
				m.probe(w.Ctx())
			}
		}
	})

	return nil
}

// Stop halts the probe loop. It satisfies mgr.Module. The worker observes
// the manager's own shutdown via w.Done(), so this just stops new ticks
// from being scheduled.
func (m *Monitor) Stop(_ *mgr.Manager) error {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	return nil
}

func (m *Monitor) probe(ctx context.Context) {
	provider := m.source.ActiveProvider()
	if provider == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := m.runProbe(probeCtx, provider)
	now := time.Now()
	if m.OnProbe != nil {
		m.OnProbe(err == nil, now)
	}

	if err != nil {
		if m.lastHealthy {
			log.Warningf("health: provider %s failed probe: %s", provider.Name, err)
			notifications.NotifyWarn(
				eventIDHealth,
				"Secure DNS Provider Unreachable",
				fmt.Sprintf("%s stopped answering queries: %s", provider.Name, err),
			)
		}
		m.lastHealthy = false
		return
	}

	if !m.lastHealthy {
		log.Infof("health: provider %s recovered", provider.Name)
		notifications.Delete(eventIDHealth)
	}
	m.lastHealthy = true
}

func (m *Monitor) runProbe(ctx context.Context, provider *model.Provider) error {
	query, err := dnswire.BuildQuery(probeDomain, dns.TypeA)
	if err != nil {
		return fmt.Errorf("build probe query: %w", err)
	}

	reply, err := m.transport.Query(ctx, provider, query)
	if err != nil {
		return err
	}

	rcode, _, err := dnswire.ParseAnswerIPs(reply)
	if err != nil {
		return fmt.Errorf("parse probe reply: %w", err)
	}
	if !dnswire.IsSuccess(rcode) {
		return fmt.Errorf("probe returned rcode %d", rcode)
	}
	return nil
}
