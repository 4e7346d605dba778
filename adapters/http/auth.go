package http

import (
	"net/http"
	"time"

	"github.com/artpar/pocket/core/users"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionBody struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      map[string]any `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, h.opts.MaxBodyBytes, &c); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.users.Authenticate(r.Context(), c.Username, c.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.AuthFailures.WithLabelValues("credentials").Inc()
		}
		h.writeError(w, r, err)
		return
	}
	h.issue(w, r, http.StatusOK, p)
}

// signup creates a principal in the default group and logs it in.
func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, h.opts.MaxBodyBytes, &c); err != nil {
		h.writeError(w, r, err)
		return
	}
	if c.Password == "" {
		h.writeError(w, r, badRequest("password is required"))
		return
	}

	p, err := h.users.Create(r.Context(), c.Username, c.Password, nil, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.issue(w, r, http.StatusCreated, p)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		h.writeError(w, r, users.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, p.Public())
}

// refresh issues a fresh token for the current session.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		h.writeError(w, r, users.ErrUnauthorized)
		return
	}
	h.issue(w, r, http.StatusOK, p)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, status int, p *users.Principal) {
	token, expiresAt, err := h.users.IssueToken(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, sessionBody{Token: token, ExpiresAt: expiresAt, User: p.Public()})
}
