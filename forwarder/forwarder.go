// Package forwarder implements the loopback DNS listeners and the
// per-query relay to the currently active upstream provider. It never
// rewrites or inspects forwarded payloads; it only routes the bytes to
// whichever upstream transport the active provider needs and copies the
// reply back to the originating client verbatim.
package forwarder

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/notifications"
	"github.com/safing/sdfw/model"
	"github.com/safing/sdfw/service/mgr"
	"github.com/safing/sdfw/service/network/netutils"
)

// upstreamTransport is the slice of upstream.Transport's behavior the
// forwarder needs. Accepting the interface rather than the concrete type
// lets tests exercise the listener/relay logic without an upstream.Transport
// actually resolving anything over the network.
type upstreamTransport interface {
	Query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error)
}

const (
	listenAddrV4 = "127.0.0.1"
	listenAddrV6 = "::1"

	// DefaultPort is the standard DNS port the forwarder binds in
	// production. Tests use a high port instead, since binding 53 on
	// loopback requires elevated privileges on most systems.
	DefaultPort = "53"

	maxTCPMessageSize = 65535
	drainTimeout      = 5 * time.Second

	eventIDListenerFailed = "forwarder:listener-failed"
)

// Forwarder owns the four loopback listeners and relays every inbound
// query to the active provider through upstream.Transport.
type Forwarder struct {
	transport upstreamTransport
	port      string

	active atomic.Pointer[model.Provider]

	queriesHandled atomic.Uint64

	// inFlight tracks detached per-query tasks (spawned with a bare "go",
	// not mgr.Manager.Go, since they are short-lived and per-datagram/
	// per-connection rather than named workers) so Stop can bound its wait
	// on them.
	inFlight sync.WaitGroup

	closeLock sync.Mutex
	udp4      net.PacketConn
	udp6      net.PacketConn
	tcp4      net.Listener
	tcp6      net.Listener

	// bindLock guards workers, the manager Bind creates internally for
	// callers (control.Controller) that drive the listener lifecycle
	// without holding a *mgr.Manager of their own.
	bindLock sync.Mutex
	workers  *mgr.Manager
}

// New returns a Forwarder that relays through the given transport and
// listens on the given port (DefaultPort in production). The forwarder has
// no active provider until SetActiveProvider is called; queries received
// before that are dropped without a response.
func New(transport upstreamTransport, port string) *Forwarder {
	return &Forwarder{transport: transport, port: port}
}

// SetActiveProvider publishes a new active provider for subsequent
// queries. In-flight queries keep using the provider they started with,
// since each per-query task captures its own snapshot.
func (f *Forwarder) SetActiveProvider(p *model.Provider) {
	f.active.Store(p)
}

// ActiveProvider returns the current active provider, or nil if none is
// set.
func (f *Forwarder) ActiveProvider() *model.Provider {
	return f.active.Load()
}

// QueriesHandled returns the number of completed queries since the
// forwarder started.
func (f *Forwarder) QueriesHandled() uint64 {
	return f.queriesHandled.Load()
}

// Start binds the four loopback listeners and launches one worker per
// socket. It satisfies mgr.Module.
func (f *Forwarder) Start(m *mgr.Manager) error {
	udp4, err := net.ListenPacket("udp4", net.JoinHostPort(listenAddrV4, f.port))
	if err != nil {
		f.reportBindFailure("udp", listenAddrV4, err)
		return fmt.Errorf("listen udp4: %w", err)
	}
	f.udp4 = udp4

	udp6, err := net.ListenPacket("udp6", net.JoinHostPort(listenAddrV6, f.port))
	if err != nil {
		f.reportBindFailure("udp", listenAddrV6, err)
		_ = udp4.Close()
		return fmt.Errorf("listen udp6: %w", err)
	}
	f.udp6 = udp6

	tcp4, err := net.Listen("tcp4", net.JoinHostPort(listenAddrV4, f.port))
	if err != nil {
		f.reportBindFailure("tcp", listenAddrV4, err)
		_ = udp4.Close()
		_ = udp6.Close()
		return fmt.Errorf("listen tcp4: %w", err)
	}
	f.tcp4 = tcp4

	tcp6, err := net.Listen("tcp6", net.JoinHostPort(listenAddrV6, f.port))
	if err != nil {
		f.reportBindFailure("tcp", listenAddrV6, err)
		_ = udp4.Close()
		_ = udp6.Close()
		_ = tcp4.Close()
		return fmt.Errorf("listen tcp6: %w", err)
	}
	f.tcp6 = tcp6

	notifications.Delete(eventIDListenerFailed)

	m.Go("udp4 listener", func(w *mgr.WorkerCtx) error { return f.serveUDP(w, udp4) })
	m.Go("udp6 listener", func(w *mgr.WorkerCtx) error { return f.serveUDP(w, udp6) })
	m.Go("tcp4 listener", func(w *mgr.WorkerCtx) error { return f.serveTCP(w, tcp4) })
	m.Go("tcp6 listener", func(w *mgr.WorkerCtx) error { return f.serveTCP(w, tcp6) })

	return nil
}

// Stop closes all listeners and waits up to 5 seconds for in-flight
// workers to drain. It satisfies mgr.Module.
func (f *Forwarder) Stop(m *mgr.Manager) error {
	f.closeLock.Lock()
	conns := []interface{ Close() error }{f.udp4, f.udp6, f.tcp4, f.tcp6}
	f.closeLock.Unlock()

	for _, c := range conns {
		if c != nil {
			_ = c.Close()
		}
	}

	m.WaitForWorkers(drainTimeout)

	drained := make(chan struct{})
	go func() {
		f.inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warningf("forwarder: timed out waiting for in-flight queries to drain")
	}
	return nil
}

// Bind starts the listeners under an internally-owned manager and satisfies
// control.Listener for callers that drive the forwarder's lifecycle without
// otherwise needing mgr.Manager plumbing. Calling Bind twice without an
// intervening Unbind returns an error.
func (f *Forwarder) Bind() error {
	f.bindLock.Lock()
	defer f.bindLock.Unlock()

	if f.workers != nil {
		return fmt.Errorf("forwarder: already bound")
	}

	m := mgr.New("forwarder")
	if err := f.Start(m); err != nil {
		return err
	}
	f.workers = m
	return nil
}

// Unbind closes the listeners bound by Bind and waits for in-flight queries
// to drain. It is a no-op if Bind was never called or Unbind already ran.
func (f *Forwarder) Unbind() error {
	f.bindLock.Lock()
	m := f.workers
	f.workers = nil
	f.bindLock.Unlock()

	if m == nil {
		return nil
	}
	return f.Stop(m)
}

func (f *Forwarder) reportBindFailure(proto, addr string, err error) {
	log.Errorf("forwarder: failed to bind %s %s:%s: %s", proto, addr, f.port, err)
	notifications.NotifyError(
		eventIDListenerFailed,
		"Secure DNS Listener Failed",
		fmt.Sprintf("Could not bind %s %s:%s, likely because another service is already listening there: %s", proto, addr, f.port, err),
	)
}

func (f *Forwarder) serveUDP(w *mgr.WorkerCtx, conn net.PacketConn) error {
	buf := make([]byte, maxTCPMessageSize)
	for {
		n, remote, err := conn.ReadFrom(buf)
		if err != nil {
			if w.IsDone() {
				return nil
			}
			return err
		}

		query := make([]byte, n)
		copy(query, buf[:n])

		f.inFlight.Add(1)
		go f.relayUDP(w.Ctx(), conn, remote, query)
	}
}

func (f *Forwarder) relayUDP(ctx context.Context, conn net.PacketConn, remote net.Addr, query []byte) {
	defer f.inFlight.Done()

	if !isHostLocal(remote) {
		log.Tracef("forwarder: dropping udp query from non-local address %s", remote)
		return
	}

	provider := f.active.Load()
	if provider == nil {
		return
	}

	reply, err := f.transport.Query(ctx, provider, query)
	if err != nil {
		log.Tracef("forwarder: query via %s failed: %s", provider.Name, err)
		return
	}

	if _, err := conn.WriteTo(reply, remote); err != nil {
		log.Tracef("forwarder: failed to write udp reply to %s: %s", remote, err)
		return
	}

	f.queriesHandled.Add(1)
}

func (f *Forwarder) serveTCP(w *mgr.WorkerCtx, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if w.IsDone() {
				return nil
			}
			return err
		}

		f.inFlight.Add(1)
		go f.relayTCP(w.Ctx(), conn)
	}
}

func (f *Forwarder) relayTCP(ctx context.Context, conn net.Conn) {
	defer f.inFlight.Done()
	defer conn.Close() //nolint:errcheck

	if !isHostLocal(conn.RemoteAddr()) {
		log.Tracef("forwarder: dropping tcp connection from non-local address %s", conn.RemoteAddr())
		return
	}

	lengthPrefix := make([]byte, 2)
	if _, err := readFull(conn, lengthPrefix); err != nil {
		return
	}
	length := int(lengthPrefix[0])<<8 | int(lengthPrefix[1])
	if length <= 0 || length > maxTCPMessageSize {
		// Oversized or empty framing: drop without response.
		return
	}

	query := make([]byte, length)
	if _, err := readFull(conn, query); err != nil {
		return
	}

	provider := f.active.Load()
	if provider == nil {
		return
	}

	reply, err := f.transport.Query(ctx, provider, query)
	if err != nil {
		log.Tracef("forwarder: tcp query via %s failed: %s", provider.Name, err)
		return
	}
	if len(reply) > maxTCPMessageSize {
		return
	}

	out := make([]byte, 2+len(reply))
	out[0] = byte(len(reply) >> 8)
	out[1] = byte(len(reply))
	copy(out[2:], reply)

	if _, err := conn.Write(out); err != nil {
		log.Tracef("forwarder: failed to write tcp reply: %s", err)
		return
	}

	f.queriesHandled.Add(1)
}

// isHostLocal reports whether addr belongs to the host-local scope
// (127.0.0.0/8 or ::1). The forwarder only ever binds loopback listeners,
// but a second check at relay time costs nothing and guards against a
// misconfigured bind address slipping through.
func isHostLocal(addr net.Addr) bool {
	ip, _, err := netutils.IPPortFromAddr(addr)
	if err != nil {
		return false
	}
	return netutils.GetIPScope(ip) == netutils.HostLocal
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
