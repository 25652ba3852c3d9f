// Package model holds the plain data types shared across the settings
// store, the adapter controller, the control state machine and the IPC
// server. None of these types raise change events themselves; coarse
// grained change notifications are the job of notifications.Changed and
// settings.Changed.
package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

// ProviderType discriminates the two upstream shapes a Provider can take.
type ProviderType string

const (
	ProviderStandard ProviderType = "standard"
	ProviderDoH      ProviderType = "doh"
)

// Provider is a named upstream DNS service.
type Provider struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	BuiltIn     bool         `json:"builtIn"`
	Type        ProviderType `json:"type"`

	// Standard fields. At least one address must be set.
	PrimaryV4   string `json:"primaryIpv4,omitempty"`
	SecondaryV4 string `json:"secondaryIpv4,omitempty"`
	PrimaryV6   string `json:"primaryIpv6,omitempty"`
	SecondaryV6 string `json:"secondaryIpv6,omitempty"`

	// DoH fields.
	DohURL       string   `json:"dohUrl,omitempty"`
	BootstrapIPs []string `json:"bootstrapIps,omitempty"`
}

var (
	ErrMissingName      = errors.New("provider: name must not be empty")
	ErrNoStandardAddr   = errors.New("provider: standard provider needs at least one address")
	ErrMalformedDohURL  = errors.New("provider: doh url must be an absolute https url")
	ErrUnknownType      = errors.New("provider: unknown provider type")
)

// Validate checks the invariants from the data model: a name, and either a
// valid standard address set or a well-formed https DoH URL.
func (p *Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrMissingName
	}

	switch p.Type {
	case ProviderStandard:
		if p.PrimaryV4 == "" && p.SecondaryV4 == "" && p.PrimaryV6 == "" && p.SecondaryV6 == "" {
			return ErrNoStandardAddr
		}
		for _, addr := range []string{p.PrimaryV4, p.SecondaryV4, p.PrimaryV6, p.SecondaryV6} {
			if addr != "" && net.ParseIP(addr) == nil {
				return fmt.Errorf("%w: %q is not an IP literal", ErrNoStandardAddr, addr)
			}
		}
	case ProviderDoH:
		u, err := url.Parse(p.DohURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return ErrMalformedDohURL
		}
	default:
		return ErrUnknownType
	}

	return nil
}

// StandardAddresses returns the provider's addresses in the fixed attempt
// order defined by the upstream transport, skipping empties.
func (p *Provider) StandardAddresses() []string {
	addrs := make([]string, 0, 4)
	for _, addr := range []string{p.PrimaryV4, p.SecondaryV4, p.PrimaryV6, p.SecondaryV6} {
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Profile is a provider selection plus the adapters it should be applied to.
type Profile struct {
	ProviderID uuid.UUID   `json:"providerId"`
	Adapters   []string    `json:"adapters"`
}

// AdapterBackup is the pre-takeover snapshot of one adapter's DNS
// configuration, captured by the adapter controller and persisted by the
// settings store so it survives a crash.
type AdapterBackup struct {
	AdapterID      string    `json:"adapterId"`
	InterfaceIndex int       `json:"interfaceIndex"`
	Name           string    `json:"name"`
	OriginalIPv4   []string  `json:"originalIpv4"`
	OriginalIPv6   []string  `json:"originalIpv6"`
	WasDHCP        bool      `json:"wasDhcp"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// UIPreferences is opaque to the core; it round-trips unknown fields
// untouched.
type UIPreferences map[string]interface{}

// ConnectionStatus is the control state machine's status value.
type ConnectionStatus string

const (
	Inactive   ConnectionStatus = "inactive"
	Connecting ConnectionStatus = "connecting"
	Testing    ConnectionStatus = "testing"
	Connected  ConnectionStatus = "connected"
	Error      ConnectionStatus = "error"
)

// SchemaVersion is bumped whenever AppSettings' on-disk shape changes in a
// way a reader must know about.
const SchemaVersion = 1

// AppSettings is the single persisted JSON document.
type AppSettings struct {
	Version        int             `json:"version"`
	Providers      []*Provider     `json:"providers"`
	DefaultProfile *Profile        `json:"defaultProfile,omitempty"`
	Enabled        bool            `json:"enabled"`
	ApplyOnBoot    bool            `json:"applyOnBoot"`
	AdapterBackups []AdapterBackup `json:"adapterBackups"`
	UISettings     UIPreferences   `json:"uiSettings,omitempty"`
}

// FindProvider returns the provider with the given ID, or nil.
func (s *AppSettings) FindProvider(id uuid.UUID) *Provider {
	for _, p := range s.Providers {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindAdapterBackup returns the backup for the given adapter ID, or nil.
func (s *AppSettings) FindAdapterBackup(adapterID string) *AdapterBackup {
	for i := range s.AdapterBackups {
		if s.AdapterBackups[i].AdapterID == adapterID {
			return &s.AdapterBackups[i]
		}
	}
	return nil
}

// Clone returns a deep-enough copy for safe handoff across the settings
// store's mutex boundary (callers must not mutate shared slices/maps of the
// original afterwards).
func (s *AppSettings) Clone() *AppSettings {
	clone := *s
	clone.Providers = append([]*Provider(nil), s.Providers...)
	clone.AdapterBackups = append([]AdapterBackup(nil), s.AdapterBackups...)
	if s.DefaultProfile != nil {
		dp := *s.DefaultProfile
		dp.Adapters = append([]string(nil), s.DefaultProfile.Adapters...)
		clone.DefaultProfile = &dp
	}
	return &clone
}

// Adapter is a snapshot of a host network adapter as reported by the
// adapter controller, including its currently effective DNS servers.
type Adapter struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	IfIndex     int      `json:"ifIndex"`
	Connected   bool     `json:"connected"`
	CurrentIPv4 []string `json:"currentIpv4"`
	CurrentIPv6 []string `json:"currentIpv6"`
}
