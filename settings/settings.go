// Package settings persists the single AppSettings JSON document under an
// atomic write discipline and broadcasts change events to interested
// components.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/utils"
	"github.com/safing/sdfw/base/utils/renameio"
	"github.com/safing/sdfw/model"
)

// ErrProviderNotFound is returned when a provider ID does not resolve.
var ErrProviderNotFound = errors.New("settings: provider not found")

// ErrNoBackup is returned when an adapter backup was requested but does not
// exist.
var ErrNoBackup = errors.New("settings: no backup for adapter")

// Store owns the single AppSettings document. All mutations are serialized
// behind one mutex and written atomically (temp file, fsync, rename) via
// base/utils/renameio.
type Store struct {
	path string

	lock     sync.Mutex
	current  *model.AppSettings

	// Changed is broadcast after every successful mutation.
	Changed *utils.BroadcastFlag
}

// New returns a Store that persists to the given file path. Call Load
// before use.
func New(path string) *Store {
	return &Store{
		path:    path,
		Changed: utils.NewBroadcastFlag(),
	}
}

// Load reads the settings document, seeding built-in defaults if the file
// does not exist yet. On any read/parse failure it falls back to defaults
// and logs, per the "never partially apply" rule; it never returns a
// partially-populated document.
func (s *Store) Load() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := utils.EnsureDirectory(filepath.Dir(s.path), utils.AdminOnlyPermission); err != nil {
		return fmt.Errorf("settings: ensure config dir: %w", err)
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("settings: no config at %s, seeding defaults", s.path)
		s.current = defaults()
		return s.writeLocked()
	case err != nil:
		log.Warningf("settings: failed to read %s, falling back to defaults: %s", s.path, err)
		s.current = defaults()
		return nil
	}

	loaded := new(model.AppSettings)
	if err := json.Unmarshal(raw, loaded); err != nil {
		log.Warningf("settings: failed to parse %s, falling back to defaults: %s", s.path, err)
		s.current = defaults()
		return nil
	}

	s.current = loaded
	return nil
}

func defaults() *model.AppSettings {
	return &model.AppSettings{
		Version:        model.SchemaVersion,
		Providers:      model.BuiltinProviders(),
		Enabled:        false,
		ApplyOnBoot:    true,
		AdapterBackups: nil,
	}
}

// Get returns a deep-enough copy of the current settings document.
func (s *Store) Get() *model.AppSettings {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.current.Clone()
}

// Update replaces the whole document and persists it. Used by SaveConfig.
func (s *Store) Update(next *model.AppSettings) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	next.Version = model.SchemaVersion
	s.current = next
	return s.writeLocked()
}

// UpsertProvider adds or replaces a provider by ID.
func (s *Store) UpsertProvider(p *model.Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for i, existing := range s.current.Providers {
		if existing.ID == p.ID {
			s.current.Providers[i] = p
			return s.writeLocked()
		}
	}
	s.current.Providers = append(s.current.Providers, p)
	return s.writeLocked()
}

// RemoveProvider deletes a provider by ID.
func (s *Store) RemoveProvider(id uuid.UUID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, existing := range s.current.Providers {
		if existing.ID == id {
			s.current.Providers = append(s.current.Providers[:i], s.current.Providers[i+1:]...)
			return s.writeLocked()
		}
	}
	return ErrProviderNotFound
}

// GetProvider returns a provider by ID.
func (s *Store) GetProvider(id uuid.UUID) (*model.Provider, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p := s.current.FindProvider(id)
	if p == nil {
		return nil, ErrProviderNotFound
	}
	clone := *p
	return &clone, nil
}

// SaveAdapterBackup stores (or replaces) the backup for one adapter. At
// most one backup per adapter exists at any time.
func (s *Store) SaveAdapterBackup(b model.AdapterBackup) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i := range s.current.AdapterBackups {
		if s.current.AdapterBackups[i].AdapterID == b.AdapterID {
			s.current.AdapterBackups[i] = b
			return s.writeLocked()
		}
	}
	s.current.AdapterBackups = append(s.current.AdapterBackups, b)
	return s.writeLocked()
}

// GetAdapterBackup returns the backup for the given adapter, if any.
func (s *Store) GetAdapterBackup(adapterID string) (*model.AdapterBackup, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	b := s.current.FindAdapterBackup(adapterID)
	if b == nil {
		return nil, ErrNoBackup
	}
	clone := *b
	return &clone, nil
}

// RemoveAdapterBackup deletes the backup for an adapter, e.g. after a
// successful restore.
func (s *Store) RemoveAdapterBackup(adapterID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i := range s.current.AdapterBackups {
		if s.current.AdapterBackups[i].AdapterID == adapterID {
			s.current.AdapterBackups = append(s.current.AdapterBackups[:i], s.current.AdapterBackups[i+1:]...)
			return s.writeLocked()
		}
	}
	// Already absent: idempotent.
	return nil
}

// writeLocked serializes and atomically persists the current document. The
// caller must hold s.lock.
func (s *Store) writeLocked() error {
	raw, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	if err := renameio.WriteFile(s.path, raw, utils.AdminOnlyPermission.AsUnixFilePermission()); err != nil {
		return fmt.Errorf("settings: atomic write: %w", err)
	}

	s.Changed.NotifyAndReset()
	return nil
}
