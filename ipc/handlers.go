package ipc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/miekg/dns"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/control"
	"github.com/safing/sdfw/dnswire"
	"github.com/safing/sdfw/service/network/netutils"
)

// dispatch decodes raw into the request type named by env.Type, runs the
// matching handler, and returns the response value to send plus whether
// the verb was recognized at all. Unknown verbs return handled=false, per
// the "unknown verbs get no response" rule.
func (s *Server) dispatch(ctx context.Context, env Envelope, raw []byte) (resp interface{}, handled bool) {
	switch env.Type {
	case TypeGetStatus:
		return s.handleGetStatus(env), true

	case TypeGetConfig:
		return s.handleGetConfig(env), true

	case TypeSaveConfig:
		var req SaveConfigRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleSaveConfig(env, &req), true

	case TypeGetAdapters:
		var req GetAdaptersRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleGetAdapters(env, &req), true

	case TypeApplyProfile:
		var req ApplyProfileRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleApplyProfile(ctx, env, &req), true

	case TypeConnectTemporary:
		var req ConnectTemporaryRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleConnectTemporary(ctx, env, &req), true

	case TypeRevertToDefault:
		return s.handleRevertToDefault(ctx, env), true

	case TypeDisable:
		var req DisableRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleDisable(env, &req), true

	case TypeTestProvider:
		var req TestProviderRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, false
		}
		return s.handleTestProvider(ctx, env, &req), true

	case TypeFlushDnsCache:
		return s.handleFlushDNSCache(env), true

	default:
		log.Tracef("ipc: unknown verb %q, no response", env.Type)
		return nil, false
	}
}

func replyEnvelope(respType, messageID string) Envelope {
	return Envelope{Type: respType, MessageID: messageID, Timestamp: time.Now()}
}

func (s *Server) handleGetStatus(env Envelope) GetStatusResponse {
	status := s.control.Status()

	resp := GetStatusResponse{
		Envelope:        replyEnvelope(TypeGetStatusResponse, env.MessageID),
		Status:          string(status.State),
		IsTemporary:     status.IsTemporary,
		LastError:       status.Message,
		LastHealthCheck: s.lastHealthCheck.Load(),
	}
	if status.Active != nil {
		id := status.Active.ID
		resp.ActiveProviderID = &id
		resp.ActiveProviderName = status.Active.Name
	}
	if s.stats != nil {
		resp.QueriesHandled = s.stats.QueriesHandled()
	}
	return resp
}

func (s *Server) handleGetConfig(env Envelope) GetConfigResponse {
	return GetConfigResponse{
		Envelope: replyEnvelope(TypeGetConfigResponse, env.MessageID),
		Settings: s.settings.Get(),
	}
}

func (s *Server) handleSaveConfig(env Envelope, req *SaveConfigRequest) SaveConfigResponse {
	resp := SaveConfigResponse{Envelope: replyEnvelope(TypeSaveConfigResponse, env.MessageID)}

	if err := s.settings.Update(req.Settings); err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}

func (s *Server) handleGetAdapters(env Envelope, req *GetAdaptersRequest) GetAdaptersResponse {
	resp := GetAdaptersResponse{Envelope: replyEnvelope(TypeGetAdaptersResponse, env.MessageID)}

	adapters, err := s.adapters.List(req.ConnectedOnly)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Adapters = adapters
	return resp
}

func (s *Server) handleApplyProfile(ctx context.Context, env Envelope, req *ApplyProfileRequest) ApplyProfileResponse {
	resp := ApplyProfileResponse{Envelope: replyEnvelope(TypeApplyProfileResponse, env.MessageID)}

	settingsDoc := s.settings.Get()
	settingsDoc.DefaultProfile = &req.Profile
	if err := s.settings.Update(settingsDoc); err != nil {
		resp.Error = err.Error()
		return resp
	}

	if !req.Enable {
		resp.OK = true
		return resp
	}

	provider, err := s.settings.GetProvider(req.Profile.ProviderID)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	if err := s.adapters.Apply(req.Profile.Adapters); err != nil {
		resp.Error = err.Error()
		return resp
	}

	status := s.control.Status()
	if status.State == control.StateInactive {
		err = s.control.Start(ctx, provider)
	} else {
		err = s.control.Switch(ctx, provider, false)
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	resp.OK = true
	return resp
}

func (s *Server) handleConnectTemporary(ctx context.Context, env Envelope, req *ConnectTemporaryRequest) ConnectTemporaryResponse {
	resp := ConnectTemporaryResponse{Envelope: replyEnvelope(TypeConnectTemporaryResponse, env.MessageID)}

	provider, err := s.settings.GetProvider(req.ProviderID)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	if err := s.control.Switch(ctx, provider, true); err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}

func (s *Server) handleRevertToDefault(ctx context.Context, env Envelope) RevertToDefaultResponse {
	resp := RevertToDefaultResponse{Envelope: replyEnvelope(TypeRevertToDefaultResponse, env.MessageID)}

	if err := s.control.RevertToDefault(ctx); err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}

func (s *Server) handleDisable(env Envelope, req *DisableRequest) DisableResponse {
	resp := DisableResponse{Envelope: replyEnvelope(TypeDisableResponse, env.MessageID)}

	if err := s.control.Disable(req.RestoreOriginalDNS); err != nil {
		resp.Error = err.Error()
		return resp
	}

	if req.RestoreOriginalDNS {
		if err := s.adapters.RestoreAll(); err != nil {
			resp.Error = err.Error()
			return resp
		}
	}

	settingsDoc := s.settings.Get()
	settingsDoc.Enabled = false
	if err := s.settings.Update(settingsDoc); err != nil {
		resp.Error = err.Error()
		return resp
	}

	resp.OK = true
	return resp
}

func (s *Server) handleTestProvider(ctx context.Context, env Envelope, req *TestProviderRequest) TestProviderResponse {
	resp := TestProviderResponse{Envelope: replyEnvelope(TypeTestProviderResponse, env.MessageID)}

	provider, err := s.settings.GetProvider(req.ProviderID)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	domain := req.TestDomain
	if domain == "" {
		domain = "example.com."
	} else if domain = dns.Fqdn(domain); !netutils.IsValidFqdn(domain) {
		resp.Error = "testDomain is not a valid fully-qualified domain name"
		return resp
	}

	query, err := dnswire.BuildQuery(domain, dns.TypeA)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	started := time.Now()
	reply, err := s.probe.Query(ctx, provider, query)
	elapsed := time.Since(started)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	rcode, _, err := dnswire.ParseAnswerIPs(reply)
	if err != nil || !dnswire.IsSuccess(rcode) {
		resp.Error = "test query returned a non-success response"
		return resp
	}

	resp.OK = true
	resp.DurationMs = elapsed.Milliseconds()
	return resp
}

func (s *Server) handleFlushDNSCache(env Envelope) FlushDnsCacheResponse {
	resp := FlushDnsCacheResponse{Envelope: replyEnvelope(TypeFlushDnsCacheResponse, env.MessageID)}

	if err := s.adapters.FlushCache(); err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	return resp
}
