package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/storage"
	"github.com/artpar/pocket/core/users"
	"github.com/artpar/pocket/ports"
)

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type listBody struct {
	Data  []storage.Record `json:"data"`
	Count int              `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and writes it as {"error": ...}.
// Anonymous callers that are denied get 401 so clients know to log in.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusForbidden && PrincipalFrom(r.Context()) == nil {
		status = http.StatusUnauthorized
	}

	body := errorBody{Error: err.Error()}
	var verr *runtime.ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Errors
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runtime.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, runtime.ErrValidation),
		errors.Is(err, storage.ErrInvalidQuery),
		errors.Is(err, storage.ErrInvalidMutation),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, users.ErrInvalidGroup),
		errors.Is(err, ports.ErrInvalidFileName),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, runtime.ErrUnknownResource),
		errors.Is(err, ports.ErrFileNotFound),
		errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, users.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, users.ErrInvalidCredentials),
		errors.Is(err, users.ErrUnauthorized),
		errors.Is(err, users.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a JSON object body of at most max bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, max int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, max)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
