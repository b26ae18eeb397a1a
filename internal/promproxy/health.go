package promproxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// HealthStatus is the outcome class of a health check.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthError HealthStatus = "error"
)

// HealthResult is the structured outcome of CheckHealth.
type HealthResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
}

// CheckHealth ensures a tunnel and issues a minimal instant query ("1").
// 401 and 403 replies are reported as Prometheus auth failures, any other
// non-200 as a remote error; only a clean 200 is healthy.
func (d *Datasource) CheckHealth(ctx context.Context) HealthResult {
	if err := d.ensureTunnel(); err != nil {
		return HealthResult{
			Status:  HealthError,
			Message: fmt.Sprintf("failed to establish SSH tunnel: %s", err),
		}
	}

	params := url.Values{"query": {"1"}}
	reqURL := d.localBaseURL() + "/api/v1/query?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return HealthResult{
			Status:  HealthError,
			Message: fmt.Sprintf("failed to create request: %s", err),
		}
	}
	d.addAuth(httpReq)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return HealthResult{
			Status:  HealthError,
			Message: fmt.Sprintf("failed to connect to Prometheus: %s", err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return HealthResult{
			Status:  HealthError,
			Message: "Prometheus authentication failed (401 Unauthorized)",
		}
	case resp.StatusCode == http.StatusForbidden:
		return HealthResult{
			Status:  HealthError,
			Message: "Prometheus access forbidden (403 Forbidden)",
		}
	case resp.StatusCode != http.StatusOK:
		return HealthResult{
			Status:  HealthError,
			Message: fmt.Sprintf("Prometheus returned status %d", resp.StatusCode),
		}
	}

	return HealthResult{
		Status:  HealthOK,
		Message: "SSH tunnel and Prometheus are working",
	}
}
