package ipc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/notifications"
	"github.com/safing/sdfw/control"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
)

const (
	lengthPrefixSize = 4
	maxMessageSize   = 1 << 20 // 1 MiB
	requestTimeout   = 10 * time.Second
	drainTimeout     = 5 * time.Second
)

// settingsBackend is the slice of settings.Store the server needs.
type settingsBackend interface {
	Get() *model.AppSettings
	Update(*model.AppSettings) error
	GetProvider(id uuid.UUID) (*model.Provider, error)
}

// adapterBackend is the slice of adapter.Controller the server needs.
type adapterBackend interface {
	List(connectedOnly bool) ([]model.Adapter, error)
	Apply(adapterIDs []string) error
	RestoreAll() error
	FlushCache() error
}

// controlBackend is the slice of control.Controller the server needs.
type controlBackend interface {
	Status() control.Status
	Start(ctx context.Context, provider *model.Provider) error
	Switch(ctx context.Context, provider *model.Provider, isTemporary bool) error
	RevertToDefault(ctx context.Context) error
	Disable(restoreDns bool) error
}

// statsBackend is the slice of forwarder.Forwarder the server needs.
type statsBackend interface {
	QueriesHandled() uint64
}

// queryer issues a one-shot probe query against an arbitrary provider,
// independent of the active one. Implemented by *upstream.Transport.
type queryer interface {
	Query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error)
}

// Server accepts IPC clients on a Unix domain socket and dispatches
// requests to the settings/adapter/control/forwarder backends.
type Server struct {
	socketPath string

	settings settingsBackend
	adapters adapterBackend
	control  controlBackend
	stats    statsBackend
	probe    queryer

	ln net.Listener

	clientsLock sync.Mutex
	clients     map[*client]struct{}

	inFlight sync.WaitGroup

	lastHealthCheck atomic.Pointer[time.Time]
}

// RecordHealthCheck records the completion time of the most recent health
// probe, surfaced via GetStatus.lastHealthCheck. Wired to
// health.Monitor.OnProbe by the composition root.
func (s *Server) RecordHealthCheck(_ bool, at time.Time) {
	s.lastHealthCheck.Store(&at)
}

// New returns a Server listening at socketPath (e.g.
// "/run/sdfw/sdfw.sock") once Start is called.
func New(
	socketPath string,
	settings settingsBackend,
	adapters adapterBackend,
	ctrl controlBackend,
	stats statsBackend,
	probe queryer,
) *Server {
	return &Server{
		socketPath: socketPath,
		settings:   settings,
		adapters:   adapters,
		control:    ctrl,
		stats:      stats,
		probe:      probe,
		clients:    make(map[*client]struct{}),
	}
}

// Start binds the socket and launches the accept loop and the
// notification-broadcast worker. It satisfies mgr.Module.
func (s *Server) Start(m *mgr.Manager) error {
	_ = os.Remove(s.socketPath) // stale socket from an unclean prior shutdown

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.socketPath, err)
	}
	s.ln = ln

	m.Go("ipc accept loop", func(w *mgr.WorkerCtx) error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if w.IsDone() {
					return nil
				}
				return err
			}

			c := newClient(conn, s)
			s.addClient(c)

			s.inFlight.Add(1)
			go func() {
				defer s.inFlight.Done()
				defer s.removeClient(c)
				c.serve(w.Ctx())
			}()
		}
	})

	m.Go("ipc notification broadcaster", func(w *mgr.WorkerCtx) error {
		flag := notifications.Changed.NewFlag()
		for {
			select {
			case <-w.Done():
				return nil
			case <-flag.Signal():
				flag.Refresh()
				s.broadcastNotifications()
			}
		}
	})

	return nil
}

// Stop closes the listener and every client connection, then waits up to
// 5 seconds for in-flight connection handlers to drain. It satisfies
// mgr.Module.
func (s *Server) Stop(m *mgr.Manager) error {
	if s.ln != nil {
		_ = s.ln.Close()
	}

	s.clientsLock.Lock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsLock.Unlock()

	m.WaitForWorkers(drainTimeout)

	drained := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warningf("ipc: timed out waiting for client handlers to drain")
	}

	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) addClient(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.clientsLock.Lock()
	defer s.clientsLock.Unlock()
	delete(s.clients, c)
}

func (s *Server) broadcastNotifications() {
	for _, n := range notifications.All() {
		msg := NotificationMessage{
			Envelope: Envelope{Type: TypeNotification, MessageID: newMessageID(), Timestamp: time.Now()},
			GUID:     n.GUID,
			EventID:  n.EventID,
			Kind:     notificationKindString(n.Type),
			Title:    n.Title,
			Message:  n.Message,
			Active:   n.State == notifications.Active,
		}

		s.clientsLock.Lock()
		targets := make([]*client, 0, len(s.clients))
		for c := range s.clients {
			targets = append(targets, c)
		}
		s.clientsLock.Unlock()

		for _, c := range targets {
			if err := c.send(msg); err != nil {
				log.Tracef("ipc: failed to push notification to client: %s", err)
			}
		}
	}
}

func notificationKindString(t notifications.Type) string {
	switch t {
	case notifications.Warning:
		return "warning"
	case notifications.Prompt:
		return "prompt"
	case notifications.Error:
		return "error"
	default:
		return "info"
	}
}

func newMessageID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// client owns one connection: framed reads on the handler goroutine,
// framed writes serialized behind writeLock so notification pushes never
// interleave with a response mid-write.
type client struct {
	conn      net.Conn
	server    *Server
	writeLock sync.Mutex
}

func newClient(conn net.Conn, s *Server) *client {
	return &client{conn: conn, server: s}
}

func (c *client) serve(ctx context.Context) {
	defer c.conn.Close() //nolint:errcheck

	for {
		raw, err := readFrame(c.conn)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed JSON is a framing-level violation: close the connection.
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, handled := c.server.dispatch(reqCtx, env, raw)
		cancel()

		if !handled {
			// Unknown verb: no response, connection stays open.
			continue
		}

		if err := c.send(resp); err != nil {
			return
		}
	}
}

func (c *client) send(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: marshal response: %w", err)
	}
	if len(payload) > maxMessageSize {
		return fmt.Errorf("ipc: response exceeds %d bytes", maxMessageSize)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	var lengthPrefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))
	if _, err := c.conn.Write(lengthPrefix[:]); err != nil {
		return err
	}
	_, err = c.conn.Write(payload)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var lengthPrefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(conn, lengthPrefix[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lengthPrefix[:])
	if length == 0 || length > maxMessageSize {
		return nil, errors.New("ipc: framing violation")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
