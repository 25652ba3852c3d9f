package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	s := New(path)
	require.NoError(t, s.Load())
	return s
}

func TestLoadSeedsDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got := s.Get()

	assert.Equal(t, model.SchemaVersion, got.Version)
	assert.False(t, got.Enabled)
	assert.True(t, got.ApplyOnBoot)
	assert.NotEmpty(t, got.Providers)

	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestUpsertAndRemoveProvider(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	p := model.BuiltinProviders()[0]
	p.BuiltIn = false
	p.Name = "Custom"

	require.NoError(t, s.UpsertProvider(p))

	got, err := s.GetProvider(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Custom", got.Name)

	require.NoError(t, s.RemoveProvider(p.ID))
	_, err = s.GetProvider(p.ID)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestAdapterBackupRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	b := model.AdapterBackup{
		AdapterID:    "eth0",
		OriginalIPv4: []string{"8.8.8.8"},
	}
	require.NoError(t, s.SaveAdapterBackup(b))

	got, err := s.GetAdapterBackup("eth0")
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8"}, got.OriginalIPv4)

	require.NoError(t, s.RemoveAdapterBackup("eth0"))
	_, err = s.GetAdapterBackup("eth0")
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestSaveConfigIsNoOpOnReload(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	before := s.Get()

	require.NoError(t, s.Update(before))

	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)

	reloaded := new(model.AppSettings)
	require.NoError(t, json.Unmarshal(raw, reloaded))
	assert.Equal(t, before.Providers[0].ID, reloaded.Providers[0].ID)
}
