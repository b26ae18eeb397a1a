package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListDatasources returns the names of all configured datasources.
func ListDatasources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasources": Reg.Names()})
}

// ListMetrics returns metric names, optionally filtered by the "filter"
// query parameter.
func ListMetrics(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}

	metrics, err := ds.Metrics(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics})
}

// ListLabelNames returns all label names known to the datasource.
func ListLabelNames(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}

	labels, err := ds.LabelNames(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"labels": labels})
}

// ListLabelValues returns the values of one label, optionally restricted by
// the "metric" query parameter.
func ListLabelValues(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}

	values, err := ds.LabelValues(r.Context(), chi.URLParam(r, "label"), r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"values": values})
}
