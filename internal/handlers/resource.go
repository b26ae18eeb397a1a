package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/promtun/promtun/internal/promproxy"
)

// ResourceProxy relays an arbitrary request to the datasource's Prometheus
// through the tunnel. The relayed status, headers and body come back
// verbatim.
func ResourceProxy(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}

	path := chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	resp, err := ds.CallResource(r.Context(), promproxy.ResourceRequest{
		Method:  r.Method,
		Path:    path,
		Body:    body,
		Headers: r.Header,
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	for key, vals := range resp.Headers {
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
