package upstream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/model"
)

const (
	classicAttemptTimeout = 5 * time.Second
	classicUDPSize        = 1232
)

// queryClassic sends queryBytes to each of provider's standard addresses in
// fixed order (PrimaryV4, SecondaryV4, PrimaryV6, SecondaryV6), returning the
// first successful reply. Each address gets its own bounded attempt; a
// timeout or connection error moves on to the next address rather than
// aborting the whole query.
func queryClassic(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error) {
	addresses := provider.StandardAddresses()
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: provider %s has no standard addresses", ErrNoAddresses, provider.Name)
	}

	queryAttempts(provider.Name).Inc()
	started := time.Now()

	var lastErr error
	for _, addr := range addresses {
		reply, err := exchangeUDP(ctx, addr, queryBytes)
		if err == nil {
			queryDuration(provider.Name).UpdateDuration(started)
			return reply, nil
		}
		log.Tracef("upstream: classic query to %s (%s) failed: %s", addr, provider.Name, err)
		lastErr = err
	}

	queryFailures(provider.Name).Inc()
	return nil, fmt.Errorf("%w: %s: all addresses failed, last error: %w", ErrNoAddresses, provider.Name, lastErr)
}

// exchangeUDP writes queryBytes to addr:53 and returns whatever bytes come
// back, unexamined. It never decodes the query or the reply: the bytes this
// package forwards on the relay path must reach the wire exactly as the
// client sent them and come back exactly as the upstream answered.
func exchangeUDP(ctx context.Context, addr string, queryBytes []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, classicAttemptTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(attemptCtx, "udp", net.JoinHostPort(addr, "53"))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close() //nolint:errcheck

	if deadline, ok := attemptCtx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline for %s: %w", addr, err)
		}
	}

	if _, err := conn.Write(queryBytes); err != nil {
		return nil, fmt.Errorf("write query to %s: %w", addr, err)
	}

	buf := make([]byte, classicUDPSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", addr, err)
	}

	reply := make([]byte, n)
	copy(reply, buf[:n])
	return reply, nil
}
