// Package service wires the settings store, adapter controller, upstream
// transport, forwarder, control state machine, health monitor, and IPC
// server into one instance that can be started and stopped as a unit.
package service

import (
	"context"
	"fmt"

	"github.com/safing/sdfw/adapter"
	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/control"
	"github.com/safing/sdfw/forwarder"
	"github.com/safing/sdfw/health"
	"github.com/safing/sdfw/ipc"
	"github.com/safing/sdfw/service/mgr"
	"github.com/safing/sdfw/settings"
	"github.com/safing/sdfw/upstream"
)

// Config carries the on-disk paths an Instance needs. Everything else is
// built internally.
type Config struct {
	// SettingsPath is where the AppSettings document is persisted.
	SettingsPath string

	// SocketPath is where the IPC server listens, the host-local stand-in
	// for the Windows named pipe "SdfwServicePipe".
	SocketPath string

	// ForwarderPort overrides forwarder.DefaultPort. Tests use a high port
	// since binding 53 on loopback requires elevated privileges.
	ForwarderPort string
}

// Instance is one running copy of Sdfw: a settings store, an adapter
// controller, the forwarder whose listeners the control state machine binds,
// and the two mgr.Module components (health monitor, IPC server) that run as
// background workers.
type Instance struct {
	*mgr.Group

	version string

	settings  *settings.Store
	adapters  *adapter.Controller
	transport *upstream.Transport
	forwarder *forwarder.Forwarder
	control   *control.Controller
	health    *health.Monitor
	ipc       *ipc.Server
}

// New builds an Instance from cfg but does not start it. Call Start (via
// the embedded *mgr.Group) to bring it up.
func New(version string, cfg Config) (*Instance, error) {
	if cfg.SettingsPath == "" {
		return nil, fmt.Errorf("service: settings path is required")
	}
	if cfg.SocketPath == "" {
		return nil, fmt.Errorf("service: socket path is required")
	}
	port := cfg.ForwarderPort
	if port == "" {
		port = forwarder.DefaultPort
	}

	store := settings.New(cfg.SettingsPath)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("service: load settings: %w", err)
	}

	inst := &Instance{
		version:   version,
		settings:  store,
		adapters:  adapter.New(store),
		transport: upstream.New(),
	}

	inst.forwarder = forwarder.New(inst.transport, port)
	inst.control = control.New(inst.transport, inst.forwarder)
	inst.health = health.New(inst.transport, inst.forwarder, health.DefaultInterval)
	inst.ipc = ipc.New(cfg.SocketPath, store, inst.adapters, inst.control, inst.forwarder, inst.transport)

	// Wire health probe completions into the IPC server's lastHealthCheck
	// field, without either package needing to know about the other.
	inst.health.OnProbe = inst.ipc.RecordHealthCheck

	// The forwarder is deliberately not in this group: its listeners are
	// bound and unbound by the control state machine (see control.Start/
	// Stop), not for the whole process lifetime, so a port-53 conflict at
	// boot cannot take IPC and health down with it.
	inst.Group = mgr.NewGroup(
		inst.health,
		inst.ipc,
	)

	return inst, nil
}

// Version returns the running version string.
func (i *Instance) Version() string {
	return i.version
}

// Settings returns the settings store.
func (i *Instance) Settings() *settings.Store {
	return i.settings
}

// Adapters returns the adapter controller.
func (i *Instance) Adapters() *adapter.Controller {
	return i.adapters
}

// Control returns the control state machine.
func (i *Instance) Control() *control.Controller {
	return i.control
}

// StartDefault brings the health/IPC workers up and, if the persisted
// settings have DNS relaying enabled and a default profile set, starts the
// control state machine against that profile's provider.
//
// A failure to start the default profile (a bad provider reference, a
// port-53 bind conflict, adapter takeover failing) is logged rather than
// returned as a fatal error; a bind conflict or a failed test query is also
// reflected in the control status, the other two leave it Inactive. IPC and
// health are already running by the time control.Start is attempted, so a
// caller can still observe and correct the failure through GetStatus/
// ApplyProfile instead of the whole process refusing to come up.
func (i *Instance) StartDefault(ctx context.Context) error {
	if err := i.Group.Start(); err != nil {
		return err
	}

	doc := i.settings.Get()
	if !doc.Enabled || doc.DefaultProfile == nil {
		return nil
	}

	provider, err := i.settings.GetProvider(doc.DefaultProfile.ProviderID)
	if err != nil {
		log.Errorf("service: default profile provider: %s", err)
		return nil
	}

	if err := i.adapters.Apply(doc.DefaultProfile.Adapters); err != nil {
		log.Errorf("service: apply default profile adapters: %s", err)
		return nil
	}

	if err := i.control.Start(ctx, provider); err != nil {
		log.Errorf("service: failed to start default profile: %s", err)
	}
	return nil
}

// Stop unbinds the forwarder's listeners via the control state machine and
// then stops the health/IPC workers. It shadows the embedded
// *mgr.Group.Stop so callers don't have to reach through to control
// themselves.
func (i *Instance) Stop() bool {
	if err := i.control.Stop(); err != nil {
		log.Errorf("service: failed to stop control: %s", err)
	}
	return i.Group.Stop()
}
