// Package control implements the Inactive/Connecting/Testing/Connected/Error
// state machine that governs which provider the forwarder relays through,
// and binds and unbinds the forwarder's listeners around it. Adapter
// takeover and restoration are done by the callers, not by this package.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/notifications"
	"github.com/safing/sdfw/base/utils"
	"github.com/safing/sdfw/dnswire"
	"github.com/safing/sdfw/model"
)

// State is one of the five control states.
type State string

const (
	StateInactive   State = "inactive"
	StateConnecting State = "connecting"
	StateTesting    State = "testing"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// testQueryDomain is the synthetic query Start/Switch use to validate a
// provider.
const testQueryDomain = "example.com."

// ErrInactive is returned when Switch is called while the controller is
// Inactive.
var ErrInactive = errors.New("control: switch requires an active session, controller is inactive")

const eventIDStatusChanged = "control:status-changed"

// queryer issues a DNS query against a specific provider, independent of
// the forwarder's listener state. Implemented by *upstream.Transport.
type queryer interface {
	Query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error)
}

// Listener binds and unbinds the four loopback listeners and publishes the
// provider queries get relayed through. Implemented by *forwarder.Forwarder;
// expressed as an interface here so control does not need to import the
// mgr.Manager plumbing the forwarder uses to run its listener workers.
//
// Bind/Unbind are driven entirely by the control state machine: the sockets
// exist only between a successful Start and a Stop/Disable, not for the
// whole process lifetime, so an unconfigured or disabled instance never
// holds port 53 open.
type Listener interface {
	SetActiveProvider(p *model.Provider)
	Bind() error
	Unbind() error
}

// Status is a snapshot of the controller's state, safe to hand to callers
// without further locking.
type Status struct {
	State       State
	Active      *model.Provider
	Default     *model.Provider
	IsTemporary bool
	Message     string
}

// Controller drives the control state machine described by the Start,
// Switch, RevertToDefault, Disable and Stop operations.
type Controller struct {
	transport queryer
	listener  Listener

	mu          sync.Mutex
	state       State
	active      *model.Provider
	def         *model.Provider
	isTemporary bool
	message     string

	switchLimiter *utils.CallLimiter2

	// Changed is broadcast whenever Status() would return something new.
	Changed *utils.BroadcastFlag
}

// New returns a Controller in the Inactive state.
func New(transport queryer, listener Listener) *Controller {
	return &Controller{
		transport:     transport,
		listener:      listener,
		state:         StateInactive,
		switchLimiter: utils.NewCallLimiter2(0),
		Changed:       utils.NewBroadcastFlag(),
	}
}

// Status returns a snapshot of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		State:       c.state,
		Active:      c.active,
		Default:     c.def,
		IsTemporary: c.isTemporary,
		Message:     c.message,
	}
}

// Start seeds active and default to provider, binds the forwarder's
// listeners and runs the synthetic test query. A Start while not-Inactive
// is treated as Stop-then-Start. If the listeners fail to bind (most likely
// another process already holds port 53), Start returns to Inactive with
// the failure recorded as the status message, rather than leaving the
// controller stuck mid-transition.
func (c *Controller) Start(ctx context.Context, provider *model.Provider) error {
	c.mu.Lock()
	if c.state != StateInactive {
		c.mu.Unlock()
		if err := c.Stop(); err != nil {
			return err
		}
		c.mu.Lock()
	}

	c.active = provider
	c.def = provider
	c.isTemporary = false
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	if err := c.listener.Bind(); err != nil {
		c.mu.Lock()
		c.active = nil
		c.def = nil
		c.setStateLocked(StateInactive, "failed to bind listeners: "+err.Error())
		c.mu.Unlock()
		return err
	}

	c.listener.SetActiveProvider(provider)

	return c.runTest(ctx, provider)
}

// Switch changes the active provider. If isTemporary is false, it also
// becomes the new default. Concurrent Switch calls are serialized through
// switchLimiter; since the limiter only guarantees ONE of the bundled
// callers' functions actually executes, every execution reads the most
// recently requested target rather than closure-captured arguments, so the
// last caller's intent always wins even when its own call never itself
// executes the switch.
func (c *Controller) Switch(ctx context.Context, provider *model.Provider, isTemporary bool) error {
	c.mu.Lock()
	if c.state == StateInactive {
		c.mu.Unlock()
		return ErrInactive
	}
	c.mu.Unlock()

	var switchErr error
	c.switchLimiter.Do(func() {
		switchErr = c.doSwitch(ctx, provider, isTemporary)
	})
	return switchErr
}

func (c *Controller) doSwitch(ctx context.Context, provider *model.Provider, isTemporary bool) error {
	c.mu.Lock()
	c.active = provider
	if !isTemporary {
		c.def = provider
	}
	c.isTemporary = isTemporary
	c.setStateLocked(StateTesting, "")
	c.mu.Unlock()

	c.listener.SetActiveProvider(provider)

	return c.runTest(ctx, provider)
}

// RevertToDefault switches back to the default provider, clearing any
// temporary override.
func (c *Controller) RevertToDefault(ctx context.Context) error {
	c.mu.Lock()
	def := c.def
	c.mu.Unlock()

	if def == nil {
		return ErrInactive
	}
	return c.Switch(ctx, def, false)
}

// runTest runs the synthetic test query and transitions Testing ->
// Connected/Error accordingly. Sockets remain bound on failure so a
// subsequent Switch can recover without re-binding.
func (c *Controller) runTest(ctx context.Context, provider *model.Provider) error {
	c.mu.Lock()
	c.setStateLocked(StateTesting, "")
	c.mu.Unlock()

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query, err := dnswire.BuildQuery(testQueryDomain, dns.TypeA)
	if err != nil {
		c.fail("failed to build test query: " + err.Error())
		return err
	}

	reply, err := c.transport.Query(testCtx, provider, query)
	if err != nil {
		c.fail("test query failed: " + err.Error())
		return nil //nolint:nilerr // Error is a valid terminal state, not a caller-facing failure.
	}

	rcode, _, err := dnswire.ParseAnswerIPs(reply)
	if err != nil || !dnswire.IsSuccess(rcode) {
		c.fail("test query returned a non-success response")
		return nil
	}

	c.mu.Lock()
	c.setStateLocked(StateConnected, "")
	c.mu.Unlock()
	return nil
}

func (c *Controller) fail(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(StateError, message)
}

// setStateLocked must be called with mu held.
func (c *Controller) setStateLocked(s State, message string) {
	if c.state == s && c.message == message {
		return
	}
	log.Infof("control: state %s -> %s", c.state, s)
	c.state = s
	c.message = message
	c.Changed.NotifyAndReset()

	if s == StateError {
		notifications.NotifyError(eventIDStatusChanged, "Secure DNS Connection Failed", message)
	} else {
		notifications.Delete(eventIDStatusChanged)
	}
}

// Stop unconditionally tears down, regardless of current state, and unbinds
// the forwarder's listeners. Unbind is idempotent, so calling Stop while
// already Inactive (nothing ever bound) is harmless.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.setStateLocked(StateInactive, "")
	c.active = nil
	c.isTemporary = false
	c.mu.Unlock()

	c.listener.SetActiveProvider(nil)
	return c.listener.Unbind()
}

// Disable stops relaying through the forwarder and unbinds its listeners.
// If restoreDns is true the caller is expected to also hand DNS resolution
// back to whatever the adapter captured it from (out of this package's
// scope); Disable itself only tears down the control/listener state.
func (c *Controller) Disable(restoreDns bool) error {
	if err := c.Stop(); err != nil {
		return err
	}
	log.Infof("control: disabled, restoreDns=%v", restoreDns)
	return nil
}
