// Package adapter enumerates host network adapters, takes a DNS backup of
// each targeted adapter, applies loopback DNS to them, restores from
// backup, and flushes the OS resolver cache. The OS-specific mechanics live
// in adapter_linux.go / adapter_windows.go behind the platform interface;
// this file holds the backup/apply/restore protocol shared by both.
package adapter

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/settings"
)

// platform is the host-specific surface the Controller drives. Each OS
// implements it in its own file.
type platform interface {
	// list returns all host adapters, optionally filtering to connected ones.
	// Loopback and tunnel adapters are always excluded.
	list(connectedOnly bool) ([]model.Adapter, error)

	// currentDNS returns the adapter's effective DNS configuration and
	// whether it was obtained via DHCP.
	currentDNS(a model.Adapter) (ipv4, ipv6 []string, dhcp bool, err error)

	// setLoopbackDNS points the adapter at 127.0.0.1 / ::1.
	setLoopbackDNS(a model.Adapter) error

	// restoreDNS re-applies a prior backup, resetting to DHCP if it was
	// DHCP-assigned.
	restoreDNS(a model.Adapter, backup model.AdapterBackup) error

	// flushCache flushes the OS-level resolver cache.
	flushCache() error
}

// Controller implements the adapter-DNS takeover and restoration protocol.
type Controller struct {
	store *settings.Store
	plat  platform
}

// New returns a Controller using the current host's platform backend.
func New(store *settings.Store) *Controller {
	return &Controller{store: store, plat: newPlatform()}
}

// List returns a snapshot of host adapters.
func (c *Controller) List(connectedOnly bool) ([]model.Adapter, error) {
	return c.plat.list(connectedOnly)
}

// Apply takes over the given adapter IDs: backing up each (if not already
// backed up) and pointing it at loopback DNS. Failures on individual
// adapters are logged and do not abort the operation; the overall call
// reports success if at least one adapter was updated.
func (c *Controller) Apply(adapterIDs []string) error {
	all, err := c.plat.list(false)
	if err != nil {
		return fmt.Errorf("adapter: list: %w", err)
	}
	byID := make(map[string]model.Adapter, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	var errs *multierror.Error
	applied := 0
	for _, id := range adapterIDs {
		a, ok := byID[id]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("adapter %s: not found", id))
			continue
		}

		if err := c.backupIfAbsent(a); err != nil {
			log.Warningf("adapter: backup failed for %s: %s", a.Name, err)
			errs = multierror.Append(errs, err)
			continue
		}

		if err := c.plat.setLoopbackDNS(a); err != nil {
			log.Warningf("adapter: loopback takeover failed for %s: %s", a.Name, err)
			errs = multierror.Append(errs, err)
			continue
		}

		applied++
	}

	if applied == 0 && errs != nil {
		return errs
	}
	return nil
}

func (c *Controller) backupIfAbsent(a model.Adapter) error {
	if _, err := c.store.GetAdapterBackup(a.ID); err == nil {
		// Already backed up; do not overwrite with the now-loopback values.
		return nil
	}

	ipv4, ipv6, dhcp, err := c.plat.currentDNS(a)
	if err != nil {
		return fmt.Errorf("read current dns: %w", err)
	}

	return c.store.SaveAdapterBackup(model.AdapterBackup{
		AdapterID:      a.ID,
		InterfaceIndex: a.IfIndex,
		Name:           a.Name,
		OriginalIPv4:   ipv4,
		OriginalIPv6:   ipv6,
		WasDHCP:        dhcp,
	})
}

// RestoreAll restores every adapter with a stored backup and clears the
// backups on success. Per-adapter failures are logged and skipped; the
// corresponding backup is left in place so the next opportunity (including
// after a crash) can retry it.
func (c *Controller) RestoreAll() error {
	backups := c.store.Get().AdapterBackups
	if len(backups) == 0 {
		return nil
	}

	all, err := c.plat.list(false)
	if err != nil {
		return fmt.Errorf("adapter: list: %w", err)
	}
	byID := make(map[string]model.Adapter, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	var errs *multierror.Error
	for _, backup := range backups {
		a, ok := byID[backup.AdapterID]
		if !ok {
			log.Warningf("adapter: restore skipped, adapter %s gone", backup.AdapterID)
			continue
		}

		if err := c.plat.restoreDNS(a, backup); err != nil {
			log.Warningf("adapter: restore failed for %s: %s", a.Name, err)
			errs = multierror.Append(errs, err)
			continue
		}

		if err := c.store.RemoveAdapterBackup(backup.AdapterID); err != nil {
			log.Warningf("adapter: failed to clear backup for %s: %s", a.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	if errs != nil {
		return errs
	}
	return nil
}

// FlushCache flushes the OS resolver cache.
func (c *Controller) FlushCache() error {
	return c.plat.flushCache()
}
