package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/promtun/promtun/internal/logutil"
	"github.com/promtun/promtun/internal/promproxy"
	"github.com/promtun/promtun/internal/sshtunnel"
)

// Reg holds the configured datasources. Set by main before the router
// starts serving.
var Reg *promproxy.Registry

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// getDatasource resolves the {name} route parameter against the registry.
// Writes a 404 and returns false when the datasource is not configured.
func getDatasource(w http.ResponseWriter, r *http.Request) (*promproxy.Datasource, bool) {
	name := chi.URLParam(r, "name")
	ds, ok := Reg.Get(name)
	if !ok {
		log.Printf("[handlers] request for unknown datasource %q", logutil.SanitizeForLog(name))
		writeError(w, http.StatusNotFound, "unknown datasource: "+name)
		return nil, false
	}
	return ds, true
}

// statusForError maps engine and tunnel errors onto HTTP statuses. A
// rejection reported by Prometheus itself is the caller's fault (bad
// query); anything that kept us from reaching Prometheus is a gateway
// problem.
func statusForError(err error) int {
	var reqErr *promproxy.RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}

	var gwErr *promproxy.GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Remote != "" {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}

	var authErr *sshtunnel.AuthError
	var connErr *sshtunnel.ConnectError
	var bindErr *sshtunnel.BindError
	if errors.As(err, &authErr) || errors.As(err, &connErr) || errors.As(err, &bindErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}
