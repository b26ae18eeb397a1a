package handlers

import (
	"net/http"
)

// HealthCheck reports service liveness and the configured datasources. It
// never opens tunnels; per-datasource health has its own endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := Reg.Names()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"datasources": names,
	})
}

// DatasourceHealth runs the full tunnel-plus-Prometheus check for one
// datasource. The check outcome is carried in the payload; the HTTP status
// is 200 either way so callers can distinguish "the check ran and failed"
// from "the service is broken".
func DatasourceHealth(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.CheckHealth(r.Context()))
}
