package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/promtun/promtun/internal/promproxy"
)

type queryRequest struct {
	Queries []promproxy.QuerySpec `json:"queries"`
}

type queryResult struct {
	RefID  string                  `json:"refId"`
	Frames []promproxy.SeriesFrame `json:"frames"`
	Error  string                  `json:"error,omitempty"`
}

// RunQueries executes a batch of queries against one datasource. Individual
// query failures are reported inline so one bad expression does not sink
// the batch; the response status reflects the worst failure.
func RunQueries(w http.ResponseWriter, r *http.Request) {
	ds, ok := getDatasource(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "no queries in request")
		return
	}

	results := ds.RunQueries(r.Context(), req.Queries)

	status := http.StatusOK
	out := make([]queryResult, len(results))
	for i, res := range results {
		out[i] = queryResult{RefID: res.RefID, Frames: res.Frames}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			if s := statusForError(res.Err); s > status {
				status = s
			}
		}
	}

	writeJSON(w, status, map[string]interface{}{"results": out})
}
