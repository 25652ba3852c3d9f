// Package ipc implements the length-prefixed, JSON tagged-union request/
// response protocol exposed over a local Unix domain socket — the stand-in
// for the Windows named pipe "SdfwServicePipe". Every message is a
// 4-byte little-endian length prefix followed by that many bytes of UTF-8
// JSON, discriminated by a "$type" field; every request type has a
// matching response type carrying the same messageId.
package ipc

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/safing/sdfw/model"
)

// Envelope carries the fields every message shares: the type discriminator
// and the correlation ID. Request and response types embed it directly
// rather than nesting it under a "payload" key, so the wire JSON stays
// flat.
type Envelope struct {
	Type      string    `json:"$type"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Verb type discriminators.
const (
	TypeGetStatus         = "GetStatus"
	TypeGetStatusResponse = "GetStatusResponse"

	TypeGetConfig         = "GetConfig"
	TypeGetConfigResponse = "GetConfigResponse"

	TypeSaveConfig         = "SaveConfig"
	TypeSaveConfigResponse = "SaveConfigResponse"

	TypeGetAdapters         = "GetAdapters"
	TypeGetAdaptersResponse = "GetAdaptersResponse"

	TypeApplyProfile         = "ApplyProfile"
	TypeApplyProfileResponse = "ApplyProfileResponse"

	TypeConnectTemporary         = "ConnectTemporary"
	TypeConnectTemporaryResponse = "ConnectTemporaryResponse"

	TypeRevertToDefault         = "RevertToDefault"
	TypeRevertToDefaultResponse = "RevertToDefaultResponse"

	TypeDisable         = "Disable"
	TypeDisableResponse = "DisableResponse"

	TypeTestProvider         = "TestProvider"
	TypeTestProviderResponse = "TestProviderResponse"

	TypeFlushDnsCache         = "FlushDnsCache"
	TypeFlushDnsCacheResponse = "FlushDnsCacheResponse"

	// TypeNotification is server-pushed, unsolicited (no corresponding
	// request), broadcast to every connected client.
	TypeNotification = "Notification"
)

// GetStatusRequest has no additional fields.
type GetStatusRequest struct {
	Envelope
}

// GetStatusResponse mirrors control.Status plus the forwarder's running
// query count.
type GetStatusResponse struct {
	Envelope
	Status             string     `json:"status"`
	ActiveProviderID   *uuid.UUID `json:"activeProviderId,omitempty"`
	ActiveProviderName string     `json:"activeProviderName,omitempty"`
	IsTemporary        bool       `json:"isTemporary"`
	LastError          string     `json:"lastError,omitempty"`
	LastHealthCheck    *time.Time `json:"lastHealthCheck,omitempty"`
	QueriesHandled     uint64     `json:"queriesHandled"`
}

// GetConfigRequest has no additional fields.
type GetConfigRequest struct {
	Envelope
}

// GetConfigResponse carries the full settings document.
type GetConfigResponse struct {
	Envelope
	Settings *model.AppSettings `json:"settings"`
}

// SaveConfigRequest replaces the whole settings document.
type SaveConfigRequest struct {
	Envelope
	Settings *model.AppSettings `json:"settings"`
}

// SaveConfigResponse reports whether the write succeeded.
type SaveConfigResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// GetAdaptersRequest asks for a snapshot of host adapters.
type GetAdaptersRequest struct {
	Envelope
	ConnectedOnly bool `json:"connectedOnly"`
}

// GetAdaptersResponse is the adapter snapshot.
type GetAdaptersResponse struct {
	Envelope
	Adapters []model.Adapter `json:"adapters"`
	Error    string          `json:"error,omitempty"`
}

// ApplyProfileRequest persists the profile as default and, if Enable is
// set, takes over its adapters and starts or switches the forwarder.
type ApplyProfileRequest struct {
	Envelope
	Profile model.Profile `json:"profile"`
	Enable  bool          `json:"enable"`
}

// ApplyProfileResponse reports the outcome.
type ApplyProfileResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ConnectTemporaryRequest switches the active provider without touching
// the default.
type ConnectTemporaryRequest struct {
	Envelope
	ProviderID uuid.UUID `json:"providerId"`
}

// ConnectTemporaryResponse reports the outcome.
type ConnectTemporaryResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RevertToDefaultRequest has no additional fields.
type RevertToDefaultRequest struct {
	Envelope
}

// RevertToDefaultResponse reports the outcome.
type RevertToDefaultResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DisableRequest stops relaying and optionally restores adapter backups.
type DisableRequest struct {
	Envelope
	RestoreOriginalDNS bool `json:"restoreOriginalDns"`
}

// DisableResponse reports the outcome.
type DisableResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TestProviderRequest runs a one-shot latency check against a provider by
// ID without changing any state.
type TestProviderRequest struct {
	Envelope
	ProviderID uuid.UUID `json:"providerId"`
	TestDomain string    `json:"testDomain"`
}

// TestProviderResponse carries the probe result.
type TestProviderResponse struct {
	Envelope
	OK         bool   `json:"ok"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FlushDnsCacheRequest has no additional fields.
type FlushDnsCacheRequest struct {
	Envelope
}

// FlushDnsCacheResponse reports the outcome.
type FlushDnsCacheResponse struct {
	Envelope
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NotificationMessage is pushed to every client whenever
// base/notifications.Changed fires.
type NotificationMessage struct {
	Envelope
	GUID    string `json:"guid"`
	EventID string `json:"eventId"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Active  bool   `json:"active"`
}
