package ipc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/control"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
)

// buildSuccessReply unpacks queryBytes as a DNS query and returns a packed
// reply with a single fixed A record, mirroring what a real provider would
// send back for the test domain.
func buildSuccessReply(queryBytes []byte) ([]byte, error) {
	var query dns.Msg
	if err := query.Unpack(queryBytes); err != nil {
		return nil, err
	}

	reply := new(dns.Msg)
	reply.SetReply(&query)
	if len(query.Question) > 0 {
		q := query.Question[0]
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP("203.0.113.50"),
		})
	}
	return reply.Pack()
}

type fakeSettings struct {
	mu  sync.Mutex
	doc *model.AppSettings
}

func newFakeSettings(providers ...*model.Provider) *fakeSettings {
	return &fakeSettings{doc: &model.AppSettings{Version: 1, Providers: providers}}
}

func (f *fakeSettings) Get() *model.AppSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *f.doc
	return &clone
}

func (f *fakeSettings) Update(next *model.AppSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc = next
	return nil
}

func (f *fakeSettings) GetProvider(id uuid.UUID) (*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.doc.Providers {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errors.New("provider not found")
}

type fakeAdapters struct {
	flushed    bool
	restored   bool
	applyCalls [][]string
}

func (f *fakeAdapters) List(bool) ([]model.Adapter, error) {
	return []model.Adapter{{ID: "eth0", Name: "Ethernet"}}, nil
}

func (f *fakeAdapters) Apply(adapterIDs []string) error {
	f.applyCalls = append(f.applyCalls, adapterIDs)
	return nil
}

func (f *fakeAdapters) RestoreAll() error {
	f.restored = true
	return nil
}

func (f *fakeAdapters) FlushCache() error {
	f.flushed = true
	return nil
}

type fakeControl struct {
	mu     sync.Mutex
	status control.Status
}

func (f *fakeControl) Status() control.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeControl) Start(_ context.Context, provider *model.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = control.Status{State: control.StateConnected, Active: provider, Default: provider}
	return nil
}

func (f *fakeControl) Switch(_ context.Context, provider *model.Provider, isTemporary bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Active = provider
	f.status.IsTemporary = isTemporary
	f.status.State = control.StateConnected
	if !isTemporary {
		f.status.Default = provider
	}
	return nil
}

func (f *fakeControl) RevertToDefault(ctx context.Context) error {
	f.mu.Lock()
	def := f.status.Default
	f.mu.Unlock()
	return f.Switch(ctx, def, false)
}

func (f *fakeControl) Disable(bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = control.Status{State: control.StateInactive}
	return nil
}

type fakeStats struct{ handled uint64 }

func (f *fakeStats) QueriesHandled() uint64 { return f.handled }

type fakeProbe struct{}

func (fakeProbe) Query(_ context.Context, _ *model.Provider, queryBytes []byte) ([]byte, error) {
	// Handlers only look at the rcode and answers via dnswire, so a minimal
	// success reply to whatever query came in is enough.
	return buildSuccessReply(queryBytes)
}

func testProvider() *model.Provider {
	return &model.Provider{ID: uuid.Must(uuid.NewV4()), Name: "test", Type: model.ProviderStandard, PrimaryV4: "198.51.100.1"}
}

func startTestServer(t *testing.T, settings *fakeSettings, adapters *fakeAdapters, ctrl *fakeControl, stats *fakeStats) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "sdfw.sock")
	srv := New(socketPath, settings, adapters, ctrl, stats, fakeProbe{})

	m := mgr.New("ipc-test")
	require.NoError(t, srv.Start(m))
	t.Cleanup(func() { _ = srv.Stop(m) })

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return srv, socketPath
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func writeMessage(t *testing.T, conn net.Conn, v interface{}) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	var lengthPrefix [4]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
	_, err = conn.Write(lengthPrefix[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func readMessage(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var lengthPrefix [4]byte
	_, err := io.ReadFull(conn, lengthPrefix[:])
	require.NoError(t, err)
	length := binary.LittleEndian.Uint32(lengthPrefix[:])
	buf := make([]byte, length)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestGetStatusRoundTrip(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{status: control.Status{State: control.StateConnected, Active: testProvider()}}
	stats := &fakeStats{handled: 42}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	writeMessage(t, conn, GetStatusRequest{Envelope: Envelope{Type: TypeGetStatus, MessageID: "m1"}})

	var resp GetStatusResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &resp))

	assert.Equal(t, "m1", resp.MessageID)
	assert.Equal(t, TypeGetStatusResponse, resp.Type)
	assert.Equal(t, string(control.StateConnected), resp.Status)
	assert.Equal(t, uint64(42), resp.QueriesHandled)
	assert.NotNil(t, resp.ActiveProviderID)
}

func TestSaveThenGetConfigRoundTrip(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{}
	stats := &fakeStats{}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	provider := testProvider()
	writeMessage(t, conn, SaveConfigRequest{
		Envelope: Envelope{Type: TypeSaveConfig, MessageID: "m2"},
		Settings: &model.AppSettings{Version: 1, Providers: []*model.Provider{provider}},
	})
	var saveResp SaveConfigResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &saveResp))
	assert.True(t, saveResp.OK)

	writeMessage(t, conn, GetConfigRequest{Envelope: Envelope{Type: TypeGetConfig, MessageID: "m3"}})
	var getResp GetConfigResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &getResp))
	require.Len(t, getResp.Settings.Providers, 1)
	assert.Equal(t, provider.ID, getResp.Settings.Providers[0].ID)
}

func TestConnectTemporaryPreservesDefault(t *testing.T) {
	def := testProvider()
	temp := testProvider()
	settings := newFakeSettings(def, temp)
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{status: control.Status{State: control.StateConnected, Active: def, Default: def}}
	stats := &fakeStats{}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	writeMessage(t, conn, ConnectTemporaryRequest{
		Envelope:   Envelope{Type: TypeConnectTemporary, MessageID: "m4"},
		ProviderID: temp.ID,
	})
	var resp ConnectTemporaryResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &resp))
	assert.True(t, resp.OK)

	status := ctrl.Status()
	assert.Equal(t, temp.ID, status.Active.ID)
	assert.Equal(t, def.ID, status.Default.ID)
	assert.True(t, status.IsTemporary)
}

func TestUnknownVerbGetsNoResponse(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{}
	stats := &fakeStats{}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	writeMessage(t, conn, map[string]string{"$type": "NotARealVerb", "messageId": "m5"})

	// Follow up with a real request; if it answers before this one, the
	// unknown verb produced no queued response ahead of it.
	writeMessage(t, conn, GetStatusRequest{Envelope: Envelope{Type: TypeGetStatus, MessageID: "m6"}})
	var resp GetStatusResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &resp))
	assert.Equal(t, "m6", resp.MessageID)
}

func TestFramingViolationClosesConnection(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{}
	stats := &fakeStats{}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	var lengthPrefix [4]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], 0) // zero length: violation
	_, err := conn.Write(lengthPrefix[:])
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestTestProviderRejectsInvalidDomain(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{}
	stats := &fakeStats{}
	provider := testProvider()
	settings.doc.Providers = append(settings.doc.Providers, provider)

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	writeMessage(t, conn, TestProviderRequest{
		Envelope:   Envelope{Type: TypeTestProvider, MessageID: "m8"},
		ProviderID: provider.ID,
		TestDomain: "not a domain!!",
	})
	var resp TestProviderResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &resp))
	assert.False(t, resp.OK)
	assert.NotEmpty(t, resp.Error)
}

func TestFlushDnsCache(t *testing.T) {
	settings := newFakeSettings()
	adapters := &fakeAdapters{}
	ctrl := &fakeControl{}
	stats := &fakeStats{}

	_, socketPath := startTestServer(t, settings, adapters, ctrl, stats)
	conn := dial(t, socketPath)
	defer conn.Close() //nolint:errcheck

	writeMessage(t, conn, FlushDnsCacheRequest{Envelope: Envelope{Type: TypeFlushDnsCache, MessageID: "m7"}})
	var resp FlushDnsCacheResponse
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &resp))
	assert.True(t, resp.OK)
	assert.True(t, adapters.flushed)
}
