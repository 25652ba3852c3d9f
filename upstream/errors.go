package upstream

import "errors"

// Sentinel errors for the upstream transport's error taxonomy. Kinds, not
// types: callers compare with errors.Is and decide whether local recovery
// (next address, next bootstrap avenue) applies or the error must surface.
var (
	// ErrNoAddresses means a Standard provider has no usable addresses, or
	// all of them failed.
	ErrNoAddresses = errors.New("upstream: no usable addresses")

	// ErrConfigInvalid means the provider itself is malformed (bad DoH URL,
	// unknown type).
	ErrConfigInvalid = errors.New("upstream: invalid provider configuration")

	// ErrBootstrapFailed means every bootstrap avenue for a DoH host was
	// exhausted.
	ErrBootstrapFailed = errors.New("upstream: bootstrap resolution failed")

	// ErrUpstreamStatus means a DoH server responded with a status other
	// than 200 OK.
	ErrUpstreamStatus = errors.New("upstream: non-success http status")
)
