package service

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/ipc"
)

// testConfig returns a Config rooted in a fresh temp dir, with the
// forwarder bound to an unprivileged loopback port since binding 53
// requires elevated privileges on most systems.
func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SettingsPath:  filepath.Join(dir, "settings.json"),
		SocketPath:    filepath.Join(dir, "sdfw.sock"),
		ForwarderPort: "0",
	}
}

func dialIPC(t *testing.T, socketPath string, request, response interface{}) {
	t.Helper()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))

	payload, err := json.Marshal(request)
	require.NoError(t, err)

	var lengthPrefix [4]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
	_, err = conn.Write(lengthPrefix[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)

	_, err = io.ReadFull(conn, lengthPrefix[:])
	require.NoError(t, err)
	length := binary.LittleEndian.Uint32(lengthPrefix[:])
	raw := make([]byte, length)
	_, err = io.ReadFull(conn, raw)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(raw, response))
}

func TestInstanceStartsAllModulesAndServesStatusOverIPC(t *testing.T) {
	cfg := testConfig(t)
	inst, err := New("test", cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, inst.StartDefault(ctx))
	defer inst.Stop()

	var resp ipc.GetStatusResponse
	dialIPC(t, cfg.SocketPath, ipc.GetStatusRequest{
		Envelope: ipc.Envelope{Type: ipc.TypeGetStatus, MessageID: "m1"},
	}, &resp)

	// Fresh settings default to disabled with no default profile, so
	// StartDefault must not have touched the control state machine.
	require.Equal(t, "inactive", resp.Status)
}

func TestInstanceRejectsMissingPaths(t *testing.T) {
	_, err := New("test", Config{})
	require.Error(t, err)
}
