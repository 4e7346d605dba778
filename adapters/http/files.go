package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/artpar/pocket/core/users"
	"github.com/go-chi/chi/v5"
)

// upload stores the raw request body under the name in the path. Only
// signed-in principals may upload or delete files.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		h.writeError(w, r, users.ErrUnauthorized)
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	info, err := h.files.Store(r.Context(), chi.URLParam(r, "name"), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large"})
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.logger.Info().Str("file", info.Name).Str("user_id", p.ID).Int64("size", info.Size).Msg("file uploaded")
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	rc, info, err := h.files.Retrieve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug().Err(err).Str("file", info.Name).Msg("download interrupted")
	}
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	if PrincipalFrom(r.Context()) == nil {
		h.writeError(w, r, users.ErrUnauthorized)
		return
	}
	if err := h.files.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
