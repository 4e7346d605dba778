package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/storage"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"resources": h.rt.Names()})
}

func (h *Handler) resource(r *http.Request) (*runtime.Resource, error) {
	return h.rt.Lookup(chi.URLParam(r, "resource"))
}

// find lists records. Query parameters: q (a JSON query document), skip,
// limit and sort.
func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	res, err := h.resource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, opts, err := parseFind(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := res.Find(r.Context(), member(r), q, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, listBody{Data: records, Count: len(records)})
}

func parseFind(r *http.Request) (storage.Query, storage.FindOptions, error) {
	params := r.URL.Query()
	var opts storage.FindOptions

	q := storage.Query{}
	if raw := params.Get("q"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, opts, badRequest("q must be a JSON object: %v", err)
		}
	}

	for name, dst := range map[string]*int{"skip": &opts.Skip, "limit": &opts.Limit} {
		raw := params.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, opts, badRequest("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	opts.Sort = params.Get("sort")
	return q, opts, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	res, err := h.resource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload storage.Record
	if err := decodeJSON(w, r, h.opts.MaxBodyBytes, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := res.Create(r.Context(), member(r), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.resource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := res.Get(r.Context(), member(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec == nil {
		h.writeError(w, r, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// merge applies a partial update to one record.
func (h *Handler) merge(w http.ResponseWriter, r *http.Request) {
	res, err := h.resource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var payload storage.Record
	if err := decodeJSON(w, r, h.opts.MaxBodyBytes, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	delete(payload, storage.IDField)

	rec, err := res.Merge(r.Context(), member(r), chi.URLParam(r, "id"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec == nil {
		h.writeError(w, r, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	res, err := h.resource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := res.Remove(r.Context(), member(r), storage.Query{storage.IDField: chi.URLParam(r, "id")}, storage.RemoveOptions{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if n == 0 {
		h.writeError(w, r, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
