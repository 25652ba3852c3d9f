// Package upstream implements the two wire transports used to relay a
// query to a configured provider: classic UDP for Standard providers, and
// DNS-over-HTTPS for DoH providers. It never interprets the forwarded
// payload beyond what's needed to pick addresses and measure outcomes.
package upstream

import (
	"context"
	"fmt"

	"github.com/safing/sdfw/model"
)

// Transport dispatches queries to the correct wire transport for a
// provider's type, sharing one bootstrap resolver and one DoH connection
// pool set across all providers for the life of the process.
type Transport struct {
	doh *dohTransport
}

// New returns a ready-to-use Transport.
func New() *Transport {
	return &Transport{
		doh: newDohTransport(newBootstrapResolver()),
	}
}

// Query relays queryBytes (a packed DNS message) to provider and returns the
// packed reply. ctx's deadline bounds the whole operation, including any
// bootstrap resolution DoH requires.
func (t *Transport) Query(ctx context.Context, provider *model.Provider, queryBytes []byte) ([]byte, error) {
	if err := provider.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	switch provider.Type {
	case model.ProviderStandard:
		return queryClassic(ctx, provider, queryBytes)
	case model.ProviderDoH:
		return t.doh.query(ctx, provider, queryBytes)
	default:
		return nil, fmt.Errorf("%w: %s: unknown provider type", ErrConfigInvalid, provider.Name)
	}
}

// ForgetProvider drops any cached DoH client for providerID, forcing a
// fresh connection pool and bootstrap lookup on the next query. Call this
// when a provider's configuration changes.
func (t *Transport) ForgetProvider(providerID string) {
	t.doh.forget(providerID)
}
