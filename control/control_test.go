package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/model"
)

// fakeQueryer answers every query successfully unless fail is set, in
// which case it returns an error, without touching the network.
type fakeQueryer struct {
	fail atomic.Bool
}

func (f *fakeQueryer) Query(_ context.Context, _ *model.Provider, queryBytes []byte) ([]byte, error) {
	if f.fail.Load() {
		return nil, errors.New("simulated upstream failure")
	}

	query := new(dns.Msg)
	if err := query.Unpack(queryBytes); err != nil {
		return nil, err
	}
	reply := new(dns.Msg)
	reply.SetReply(query)
	if len(query.Question) > 0 {
		rr, _ := dns.NewRR(query.Question[0].Name + " 60 IN A 203.0.113.50")
		reply.Answer = append(reply.Answer, rr)
	}
	return reply.Pack()
}

// fakeListener records every SetActiveProvider call in order and tracks
// whether it is currently bound, optionally failing the next Bind.
type fakeListener struct {
	mu        sync.Mutex
	calls     []*model.Provider
	bound     bool
	bindCount int
	failBind  atomic.Bool
}

func (f *fakeListener) SetActiveProvider(p *model.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
}

func (f *fakeListener) Bind() error {
	if f.failBind.Load() {
		return errors.New("simulated bind failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = true
	f.bindCount++
	return nil
}

func (f *fakeListener) Unbind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = false
	return nil
}

func (f *fakeListener) isBound() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound
}

func (f *fakeListener) last() *model.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func testProvider(name string) *model.Provider {
	return &model.Provider{
		ID:        uuid.Must(uuid.NewV4()),
		Name:      name,
		Type:      model.ProviderStandard,
		PrimaryV4: "198.51.100.1",
	}
}

func TestControllerStartTransitionsToConnected(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	provider := testProvider("primary")
	require.NoError(t, c.Start(context.Background(), provider))

	status := c.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, provider, status.Active)
	assert.Equal(t, provider, status.Default)
	assert.Same(t, provider, listener.last())
	assert.True(t, listener.isBound())
}

func TestControllerStartBindFailureReturnsToInactive(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	listener.failBind.Store(true)
	c := New(transport, listener)

	err := c.Start(context.Background(), testProvider("unreachable-port"))
	require.Error(t, err)

	status := c.Status()
	assert.Equal(t, StateInactive, status.State)
	assert.Nil(t, status.Active)
	assert.NotEmpty(t, status.Message)
	assert.False(t, listener.isBound())
	assert.Nil(t, listener.last())
}

func TestControllerStartFailureEntersErrorState(t *testing.T) {
	transport := &fakeQueryer{}
	transport.fail.Store(true)
	listener := &fakeListener{}
	c := New(transport, listener)

	require.NoError(t, c.Start(context.Background(), testProvider("broken")))

	status := c.Status()
	assert.Equal(t, StateError, status.State)
	assert.NotEmpty(t, status.Message)
}

func TestControllerStartWhileActiveStopsFirst(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	first := testProvider("first")
	require.NoError(t, c.Start(context.Background(), first))

	second := testProvider("second")
	require.NoError(t, c.Start(context.Background(), second))

	status := c.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, second, status.Active)
}

func TestControllerSwitchWhileInactiveFails(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	err := c.Switch(context.Background(), testProvider("x"), true)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestControllerTemporarySwitchDoesNotChangeDefault(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	def := testProvider("default")
	require.NoError(t, c.Start(context.Background(), def))

	temp := testProvider("temporary")
	require.NoError(t, c.Switch(context.Background(), temp, true))

	status := c.Status()
	assert.Equal(t, temp, status.Active)
	assert.Equal(t, def, status.Default)
	assert.True(t, status.IsTemporary)
}

func TestControllerRevertToDefaultRestoresOriginalProvider(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	def := testProvider("default")
	require.NoError(t, c.Start(context.Background(), def))
	require.NoError(t, c.Switch(context.Background(), testProvider("temporary"), true))

	require.NoError(t, c.RevertToDefault(context.Background()))

	status := c.Status()
	assert.Equal(t, def, status.Active)
	assert.False(t, status.IsTemporary)
}

func TestControllerStopReturnsToInactive(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)

	require.NoError(t, c.Start(context.Background(), testProvider("primary")))
	require.NoError(t, c.Stop())

	status := c.Status()
	assert.Equal(t, StateInactive, status.State)
	assert.Nil(t, status.Active)
	assert.Nil(t, listener.last())
	assert.False(t, listener.isBound())
}

func TestControllerConcurrentSwitchesConvergeToLastRequest(t *testing.T) {
	transport := &fakeQueryer{}
	listener := &fakeListener{}
	c := New(transport, listener)
	require.NoError(t, c.Start(context.Background(), testProvider("default")))

	var wg sync.WaitGroup
	providers := make([]*model.Provider, 8)
	for i := range providers {
		providers[i] = testProvider("candidate")
	}

	for _, p := range providers {
		wg.Add(1)
		go func(p *model.Provider) {
			defer wg.Done()
			_ = c.Switch(context.Background(), p, true)
		}(p)
	}
	wg.Wait()

	// Every bundled caller's Switch returned; the controller must be in a
	// consistent terminal state reflecting one of the requested providers.
	status := c.Status()
	assert.Equal(t, StateConnected, status.State)
	found := false
	for _, p := range providers {
		if status.Active == p {
			found = true
			break
		}
	}
	assert.True(t, found)
}
