package upstream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/utils"
	"github.com/safing/sdfw/dnswire"
)

// wellKnownBootstrapResolvers is the small fixed set used as a last resort
// before falling back to the host OS resolver, per §4.4's bootstrap step 3.
// Deliberately classical UDP, queried over the host's default route, never
// through loopback.
var wellKnownBootstrapResolvers = []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"}

const bootstrapTimeout = 2 * time.Second

// bootstrapResolver resolves a DoH hostname to IP addresses without relying
// on the loopback forwarder, implementing the Open Question's resolved
// policy: per-provider bootstrap IPs first, a small well-known-resolver
// fallback, and only then the host OS resolver.
//
// Successful (hostname -> IPs) mappings are cached for the lifetime of the
// process, and concurrent lookups for the same hostname are deduplicated.
type bootstrapResolver struct {
	cacheLock sync.RWMutex
	cache     map[string][]net.IP

	inflightLock sync.Mutex
	inflight     map[string]*utils.OnceAgain
}

func newBootstrapResolver() *bootstrapResolver {
	return &bootstrapResolver{
		cache:    make(map[string][]net.IP),
		inflight: make(map[string]*utils.OnceAgain),
	}
}

// resolve returns IPs for hostname, trying in order: IP literal,
// providerBootstrapIPs, well-known resolvers, then the host OS resolver.
func (r *bootstrapResolver) resolve(ctx context.Context, hostname string, providerBootstrapIPs []string) ([]net.IP, error) {
	if ip := net.ParseIP(hostname); ip != nil {
		return []net.IP{ip}, nil
	}

	if cached, ok := r.cached(hostname); ok {
		bootstrapCacheHits().Inc()
		return cached, nil
	}

	once := r.inflightFor(hostname)
	var result []net.IP
	var resolveErr error
	once.Do(func() {
		result, resolveErr = r.resolveUncached(ctx, hostname, providerBootstrapIPs)
		if resolveErr == nil {
			r.store(hostname, result)
		}
	})
	// Re-check the cache: if another goroutine's Do() populated it while we
	// were merely a waiter, prefer that over a stale local result var.
	if cached, ok := r.cached(hostname); ok {
		return cached, nil
	}
	return result, resolveErr
}

func (r *bootstrapResolver) inflightFor(hostname string) *utils.OnceAgain {
	r.inflightLock.Lock()
	defer r.inflightLock.Unlock()

	once, ok := r.inflight[hostname]
	if !ok {
		once = &utils.OnceAgain{}
		r.inflight[hostname] = once
	}
	return once
}

func (r *bootstrapResolver) resolveUncached(ctx context.Context, hostname string, providerBootstrapIPs []string) ([]net.IP, error) {
	// 2. Provider-supplied bootstrap IPs: these only establish the initial
	// connection; they are not validated with a query.
	if len(providerBootstrapIPs) > 0 {
		ips := make([]net.IP, 0, len(providerBootstrapIPs))
		for _, literal := range providerBootstrapIPs {
			if ip := net.ParseIP(literal); ip != nil {
				ips = append(ips, ip)
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}

	// 3. Well-known public resolvers, classical UDP, bypassing loopback.
	query, err := dnswire.BuildQuery(hostname, 1 /* A */)
	if err == nil {
		for _, resolver := range wellKnownBootstrapResolvers {
			ips, err := queryResolverForIPs(ctx, resolver, query)
			if err == nil && len(ips) > 0 {
				return ips, nil
			}
		}
	}

	// 4. Last resort: host OS resolver.
	log.Warningf("upstream: bootstrap of %s exhausted well-known resolvers, falling back to host resolver", hostname)
	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip", hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBootstrapFailed, hostname, err)
	}
	return addrs, nil
}

func queryResolverForIPs(ctx context.Context, resolver string, query []byte) ([]net.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: bootstrapTimeout}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(resolver, "53"))
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	rcode, ips, err := dnswire.ParseAnswerIPs(buf[:n])
	if err != nil {
		return nil, err
	}
	if !dnswire.IsSuccess(rcode) {
		return nil, fmt.Errorf("resolver %s returned rcode %d", resolver, rcode)
	}
	return ips, nil
}

func (r *bootstrapResolver) cached(hostname string) ([]net.IP, bool) {
	r.cacheLock.RLock()
	defer r.cacheLock.RUnlock()
	ips, ok := r.cache[hostname]
	return ips, ok
}

func (r *bootstrapResolver) store(hostname string, ips []net.IP) {
	r.cacheLock.Lock()
	defer r.cacheLock.Unlock()
	r.cache[hostname] = ips
}
