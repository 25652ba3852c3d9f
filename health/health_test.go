package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
)

type fakeQueryer struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *fakeQueryer) Query(_ context.Context, _ *model.Provider, queryBytes []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("simulated failure")
	}

	query := new(dns.Msg)
	if err := query.Unpack(queryBytes); err != nil {
		return nil, err
	}
	reply := new(dns.Msg)
	reply.SetReply(query)
	if len(query.Question) > 0 {
		rr, _ := dns.NewRR(query.Question[0].Name + " 60 IN A 203.0.113.60")
		reply.Answer = append(reply.Answer, rr)
	}
	return reply.Pack()
}

type fakeSource struct {
	provider atomic.Pointer[model.Provider]
}

func (f *fakeSource) ActiveProvider() *model.Provider {
	return f.provider.Load()
}

func TestMonitorProbesActiveProvider(t *testing.T) {
	transport := &fakeQueryer{}
	source := &fakeSource{}
	source.provider.Store(&model.Provider{Name: "test"})

	mon := New(transport, source, 20*time.Millisecond)
	m := mgr.New("health-test")
	require.NoError(t, mon.Start(m))
	defer mon.Stop(m) //nolint:errcheck

	require.Eventually(t, func() bool {
		return transport.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	assert.True(t, mon.lastHealthy)
}

func TestMonitorReportsFailureThenRecovery(t *testing.T) {
	transport := &fakeQueryer{}
	transport.fail.Store(true)
	source := &fakeSource{}
	source.provider.Store(&model.Provider{Name: "flaky"})

	mon := New(transport, source, 15*time.Millisecond)
	m := mgr.New("health-failure-test")
	require.NoError(t, mon.Start(m))
	defer mon.Stop(m) //nolint:errcheck

	require.Eventually(t, func() bool {
		return !mon.lastHealthy
	}, time.Second, 10*time.Millisecond)

	transport.fail.Store(false)

	require.Eventually(t, func() bool {
		return mon.lastHealthy
	}, time.Second, 10*time.Millisecond)
}

func TestMonitorSkipsProbeWithNoActiveProvider(t *testing.T) {
	transport := &fakeQueryer{}
	source := &fakeSource{}
	// No provider set.

	mon := New(transport, source, 15*time.Millisecond)
	m := mgr.New("health-no-provider-test")
	require.NoError(t, mon.Start(m))
	defer mon.Stop(m) //nolint:errcheck

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), transport.calls.Load())
}
