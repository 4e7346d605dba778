package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/artpar/pocket/core/schema"
	"github.com/artpar/pocket/core/users"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *users.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the session principal, or nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *users.Principal {
	p, _ := ctx.Value(principalKey{}).(*users.Principal)
	return p
}

// member returns the caller as a schema.Member. Anonymous callers are a nil
// interface, never a typed nil.
func member(r *http.Request) schema.Member {
	if p := PrincipalFrom(r.Context()); p != nil {
		return p
	}
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// session restores the principal named by a bearer token. Requests with a
// missing, invalid or expired token continue as anonymous.
func (h *Handler) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := h.users.PrincipalFromToken(r.Context(), token)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, users.ErrSessionExpired) {
				reason = "expired"
			}
			if h.metrics != nil {
				h.metrics.AuthFailures.WithLabelValues(reason).Inc()
			}
			h.logger.Debug().Err(err).Str("reason", reason).Msg("session token rejected")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
