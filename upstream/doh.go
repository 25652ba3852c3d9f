package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/safing/sdfw/model"
)

const (
	dohContentType     = "application/dns-message"
	dohRequestTimeout  = 10 * time.Second
	dohIdleConnTimeout = 10 * time.Minute
	dohHandshakeTime   = 5 * time.Second
)

// dohTransport holds one *http.Client per provider, so each provider gets
// its own connection pool and its own bootstrap-aware dialer. A client is
// cached by provider ID and kept, also across changes to that provider's
// settings, until forget drops it.
type dohTransport struct {
	bootstrap *bootstrapResolver

	lock    sync.Mutex
	clients map[string]*http.Client // keyed by provider ID
}

func newDohTransport(bootstrap *bootstrapResolver) *dohTransport {
	return &dohTransport{
		bootstrap: bootstrap,
		clients:   make(map[string]*http.Client),
	}
}

// forget drops the cached client for a provider, so the next query rebuilds
// it. Its only caller is Transport.ForgetProvider.
func (t *dohTransport) forget(providerID string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if client, ok := t.clients[providerID]; ok {
		client.CloseIdleConnections()
		delete(t.clients, providerID)
	}
}

func (t *dohTransport) clientFor(provider *model.Provider) (*http.Client, *url.URL, error) {
	parsed, err := url.Parse(provider.DohURL)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return nil, nil, fmt.Errorf("%w: %s: malformed doh url", ErrConfigInvalid, provider.Name)
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if client, ok := t.clients[provider.ID.String()]; ok {
		return client, parsed, nil
	}

	hostname := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "443"
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: hostname,
		},
		IdleConnTimeout:     dohIdleConnTimeout,
		TLSHandshakeTimeout: dohHandshakeTime,
		// DialTLSContext dials the bootstrap IP directly while keeping the
		// original hostname as the TLS ServerName above, so certificate
		// verification still succeeds against the real host.
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			ips, err := t.bootstrap.resolve(ctx, hostname, provider.BootstrapIPs)
			if err != nil {
				return nil, err
			}

			var lastErr error
			dialer := &tls.Dialer{
				Config: &tls.Config{
					MinVersion: tls.VersionTLS12,
					ServerName: hostname,
				},
			}
			for _, ip := range ips {
				target := net.JoinHostPort(ip.String(), port)
				conn, err := dialer.DialContext(ctx, network, target)
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrBootstrapFailed, hostname, lastErr)
		},
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   dohRequestTimeout,
	}
	t.clients[provider.ID.String()] = client
	return client, parsed, nil
}

// query sends queryBytes as the body of a POST request to provider's DoH
// endpoint, per RFC 8484's application/dns-message content type.
func (t *dohTransport) query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error) {
	client, target, err := t.clientFor(provider)
	if err != nil {
		return nil, err
	}

	queryAttempts(provider.Name).Inc()
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(queryBytes))
	if err != nil {
		queryFailures(provider.Name).Inc()
		return nil, fmt.Errorf("build doh request: %w", err)
	}
	req.Header.Set("Content-Type", dohContentType)
	req.Header.Set("Accept", dohContentType)

	resp, err := client.Do(req)
	if err != nil {
		queryFailures(provider.Name).Inc()
		return nil, fmt.Errorf("doh request to %s: %w", provider.Name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		queryFailures(provider.Name).Inc()
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstreamStatus, provider.Name, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 65535))
	if err != nil {
		queryFailures(provider.Name).Inc()
		return nil, fmt.Errorf("read doh response: %w", err)
	}

	queryDuration(provider.Name).UpdateDuration(started)
	return body, nil
}
