package promproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

// QuerySpec is a single time-series request.
type QuerySpec struct {
	RefID        string    `json:"refId"`
	Expr         string    `json:"expr"`
	LegendFormat string    `json:"legendFormat"`
	Instant      bool      `json:"instant"`
	Range        bool      `json:"range"`
	Interval     string    `json:"interval"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`

	// MaxDataPoints derives the range step when no explicit interval is
	// given.
	MaxDataPoints int64 `json:"maxDataPoints"`
}

// QueryResult is the outcome of one QuerySpec: frames on success, Err
// otherwise.
type QueryResult struct {
	RefID  string
	Frames []SeriesFrame
	Err    error
}

// instantParams and rangeParams are the query API parameter sets, encoded
// with go-querystring.
type instantParams struct {
	Query string `url:"query"`
	Time  int64  `url:"time"`
}

type rangeParams struct {
	Query string `url:"query"`
	Start int64  `url:"start"`
	End   int64  `url:"end"`
	Step  int64  `url:"step"`
}

// RunQueries ensures a tunnel once and then runs each spec against it. A
// tunnel failure is reported on every result; per-query failures are
// independent.
func (d *Datasource) RunQueries(ctx context.Context, specs []QuerySpec) []QueryResult {
	results := make([]QueryResult, len(specs))

	if err := d.ensureTunnel(); err != nil {
		for i, spec := range specs {
			results[i] = QueryResult{RefID: spec.RefID, Err: err}
		}
		return results
	}

	for i, spec := range specs {
		frames, err := d.runQuery(ctx, spec)
		results[i] = QueryResult{RefID: spec.RefID, Frames: frames, Err: err}
	}
	return results
}

// runQuery executes one query spec through the tunnel and transforms the
// reply into frames.
func (d *Datasource) runQuery(ctx context.Context, spec QuerySpec) ([]SeriesFrame, error) {
	if spec.Expr == "" {
		return nil, nil
	}

	endpoint, params := d.buildQueryParams(spec)

	httpReq, err := d.newAPIRequest(ctx, endpoint, params)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("read response: %w", err)}
	}

	var promResp promResponse
	if err := json.Unmarshal(body, &promResp); err != nil {
		return nil, &ParseError{Err: err}
	}

	if promResp.Status != "success" {
		msg := promResp.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &GatewayError{Remote: msg}
	}

	return toFrames(promResp.Data, spec.LegendFormat), nil
}

// buildQueryParams chooses the endpoint for the spec and assembles its
// parameters: the encoded instant/range set merged with any configured
// custom parameters. Custom parameters are additive, they never override.
func (d *Datasource) buildQueryParams(spec QuerySpec) (endpoint string, params url.Values) {
	if spec.Range && !spec.Instant {
		endpoint = "/api/v1/query_range"
		params, _ = query.Values(rangeParams{
			Query: spec.Expr,
			Start: spec.From.Unix(),
			End:   spec.To.Unix(),
			Step:  calculateStep(spec.From, spec.To, spec.MaxDataPoints, spec.Interval),
		})
	} else {
		endpoint = "/api/v1/query"
		params, _ = query.Values(instantParams{
			Query: spec.Expr,
			Time:  spec.To.Unix(),
		})
	}

	if d.cfg.CustomQueryParameters != "" {
		custom, err := url.ParseQuery(d.cfg.CustomQueryParameters)
		if err == nil {
			for k, vs := range custom {
				for _, v := range vs {
					params.Add(k, v)
				}
			}
		}
	}
	return endpoint, params
}

// newAPIRequest builds a GET or POST request against the tunnel's local
// endpoint per the configured HTTP method, with Prometheus auth attached.
func (d *Datasource) newAPIRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	reqURL := d.localBaseURL() + endpoint

	var httpReq *http.Request
	var err error
	if d.cfg.HTTPMethod == http.MethodPost {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
	}

	d.addAuth(httpReq)
	return httpReq, nil
}

// calculateStep returns the range query step in seconds. An explicit
// interval that parses to a positive duration wins; otherwise the step is
// derived from the time range and maxPoints, floored at 1 second.
func calculateStep(from, to time.Time, maxPoints int64, interval string) int64 {
	if interval != "" {
		if parsed := parseInterval(interval); parsed > 0 {
			return parsed
		}
	}
	if maxPoints < 1 {
		maxPoints = 1
	}
	step := (to.Unix() - from.Unix()) / maxPoints
	if step < 1 {
		step = 1
	}
	return step
}

// parseInterval parses a single-unit interval string like "30s", "5m", "1h"
// or "2d" into seconds. Returns 0 for anything it cannot parse.
func parseInterval(interval string) int64 {
	if len(interval) < 2 {
		return 0
	}
	value, err := strconv.ParseInt(interval[:len(interval)-1], 10, 64)
	if err != nil {
		return 0
	}
	switch interval[len(interval)-1] {
	case 's':
		return value
	case 'm':
		return value * 60
	case 'h':
		return value * 3600
	case 'd':
		return value * 86400
	default:
		return 0
	}
}
