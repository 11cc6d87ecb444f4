package serv

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/fault"
)

const (
	headerLocale  = "ecliptic-locale"
	headerDevOrg  = "x-ecliptic-org"
	headerMCPKey  = "x-ecliptic-key"
	sessionCookie = "ecliptic_session"
)

type ctxKey int

const orgCtxKey ctxKey = iota

// orgFrom returns the organization the middleware resolved.
func orgFrom(ctx context.Context) *catalog.Organization {
	org, _ := ctx.Value(orgCtxKey).(*catalog.Organization)
	return org
}

// errorEnvelope is the uniform error body of the management API.
type errorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Service) locale(r *http.Request) string {
	if l := r.Header.Get(headerLocale); l != "" {
		return l
	}
	if s.conf.DefaultLocale != "" {
		return s.conf.DefaultLocale
	}
	return fault.DefaultLocale
}

func (s *Service) renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("api: encode response: %s", err)
	}
}

func (s *Service) renderFault(w http.ResponseWriter, r *http.Request, ferr *fault.Entry) {
	if ferr.ShouldLog {
		s.log.Errorw("api: request failed",
			"code", ferr.Code, "internal", ferr.Internal, "params", ferr.Params)
	}
	s.renderJSON(w, ferr.Status, errorEnvelope{
		Type:    ferr.Code,
		Message: ferr.Message(s.locale(r)),
	})
}

func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.renderFault(w, r, fault.Input("api.body", "invalid request body"))
		return false
	}
	return true
}

// withOrg resolves the caller's organization: a session cookie first, then,
// outside production, the x-ecliptic-org development header.
func (s *Service) withOrg(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, ferr := s.resolveOrg(r)
		if ferr != nil {
			s.renderFault(w, r, ferr)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), orgCtxKey, org)))
	}
}

func (s *Service) resolveOrg(r *http.Request) (*catalog.Organization, *fault.Entry) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		org, err := s.cat.ResolveSession(r.Context(), c.Value)
		if err == nil {
			return org, nil
		}
		return nil, fault.Denied("auth.session", "session expired or unknown")
	}

	if s.conf.DevAuth {
		if orgID := r.Header.Get(headerDevOrg); orgID != "" {
			org, err := s.cat.GetOrganization(r.Context(), orgID)
			if err == nil {
				return org, nil
			}
			return nil, fault.Denied("auth.org", "unknown organization")
		}
	}
	return nil, fault.Denied("auth.required", "authentication required")
}

func (s *Service) healthCheckHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.cat.Ping(r.Context()); err != nil {
			s.log.Errorw("health: catalog unreachable", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})
}

// setServerHeader adds the server name header to all responses
func setServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverName)
		next.ServeHTTP(w, r)
	})
}
