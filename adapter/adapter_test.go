package adapter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/settings"
)

type fakePlatform struct {
	adapters  []model.Adapter
	dns       map[string][2][]string // adapterID -> [ipv4, ipv6]
	dhcp      map[string]bool
	effective map[string][2][]string
	flushed   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		adapters: []model.Adapter{
			{ID: "eth0", Name: "eth0", IfIndex: 2, Connected: true},
		},
		dns: map[string][2][]string{
			"eth0": {{"8.8.8.8"}, nil},
		},
		dhcp:      map[string]bool{"eth0": false},
		effective: map[string][2][]string{},
	}
}

func (f *fakePlatform) list(connectedOnly bool) ([]model.Adapter, error) {
	return f.adapters, nil
}

func (f *fakePlatform) currentDNS(a model.Adapter) ([]string, []string, bool, error) {
	pair := f.dns[a.ID]
	return pair[0], pair[1], f.dhcp[a.ID], nil
}

func (f *fakePlatform) setLoopbackDNS(a model.Adapter) error {
	f.effective[a.ID] = [2][]string{{"127.0.0.1"}, {"::1"}}
	return nil
}

func (f *fakePlatform) restoreDNS(a model.Adapter, backup model.AdapterBackup) error {
	f.effective[a.ID] = [2][]string{backup.OriginalIPv4, backup.OriginalIPv6}
	return nil
}

func (f *fakePlatform) flushCache() error {
	f.flushed++
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakePlatform) {
	t.Helper()
	store := settings.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, store.Load())

	fp := newFakePlatform()
	return &Controller{store: store, plat: fp}, fp
}

func TestApplyAndRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	c, fp := newTestController(t)

	require.NoError(t, c.Apply([]string{"eth0"}))
	assert.Equal(t, [2][]string{{"127.0.0.1"}, {"::1"}}, fp.effective["eth0"])

	backup, err := c.store.GetAdapterBackup("eth0")
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8"}, backup.OriginalIPv4)

	require.NoError(t, c.RestoreAll())
	assert.Equal(t, []string{"8.8.8.8"}, fp.effective["eth0"][0])

	_, err = c.store.GetAdapterBackup("eth0")
	assert.ErrorIs(t, err, settings.ErrNoBackup)
}

func TestApplyTwiceDoesNotOverwriteBackup(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)

	require.NoError(t, c.Apply([]string{"eth0"}))
	require.NoError(t, c.Apply([]string{"eth0"}))

	backup, err := c.store.GetAdapterBackup("eth0")
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8"}, backup.OriginalIPv4)
}

func TestFlushCache(t *testing.T) {
	t.Parallel()

	c, fp := newTestController(t)
	require.NoError(t, c.FlushCache())
	assert.Equal(t, 1, fp.flushed)
}
