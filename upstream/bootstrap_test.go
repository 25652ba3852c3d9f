package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/sdfw/dnswire"
)

func TestBootstrapResolveIPLiteralShortCircuits(t *testing.T) {
	t.Parallel()

	r := newBootstrapResolver()
	ips, err := r.resolve(context.Background(), "9.9.9.9", nil)
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "9.9.9.9", ips[0].String())
}

func TestBootstrapResolvePrefersProviderIPs(t *testing.T) {
	t.Parallel()

	r := newBootstrapResolver()
	ips, err := r.resolve(context.Background(), "doh.example.com", []string{"198.51.100.5"})
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "198.51.100.5", ips[0].String())
}

func TestBootstrapResolveCachesResult(t *testing.T) {
	t.Parallel()

	r := newBootstrapResolver()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.resolve(ctx, "doh.example.com", []string{"198.51.100.5"})
	require.NoError(t, err)

	cached, ok := r.cached("doh.example.com")
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "198.51.100.5", cached[0].String())
}

func TestQueryResolverForIPsParsesReply(t *testing.T) {
	t.Parallel()

	// Exercises the classical-UDP bootstrap query path against the same
	// fake resolver helper used for classic-transport tests.
	addr := startFakeUDPResolver(t, "127.0.53.4")

	query, err := dnswire.BuildQuery("example.org.", dns.TypeA)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ips, err := queryResolverForIPs(ctx, addr, query)
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "203.0.113.9", ips[0].String())
}
