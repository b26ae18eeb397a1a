// discovery.go implements the metric/label discovery passthrough: thin GET
// calls against the Prometheus metadata endpoints, returned as flat string
// lists.

package promproxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/carlmjohnson/requests"
)

// stringListResponse is the envelope of the label/series metadata endpoints.
type stringListResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Data   []string `json:"data"`
}

// Metrics fetches all metric names, optionally filtered. The filter is
// applied as a regular expression when it compiles, as a plain substring
// match otherwise.
func (d *Datasource) Metrics(ctx context.Context, filter string) ([]string, error) {
	names, err := d.fetchStringList(ctx, "/api/v1/label/__name__/values", nil)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return names, nil
	}

	re, reErr := regexp.Compile(filter)
	var filtered []string
	for _, name := range names {
		if reErr == nil && re.MatchString(name) {
			filtered = append(filtered, name)
		} else if reErr != nil && strings.Contains(name, filter) {
			filtered = append(filtered, name)
		}
	}
	return filtered, nil
}

// LabelNames fetches all label names.
func (d *Datasource) LabelNames(ctx context.Context) ([]string, error) {
	return d.fetchStringList(ctx, "/api/v1/labels", nil)
}

// LabelValues fetches the values of one label, optionally restricted to
// series matching a metric selector.
func (d *Datasource) LabelValues(ctx context.Context, label, metric string) ([]string, error) {
	if label == "" {
		return nil, &RequestError{Err: fmt.Errorf("label name is required")}
	}
	params := url.Values{}
	if metric != "" {
		params.Set("match[]", metric)
	}
	return d.fetchStringList(ctx, "/api/v1/label/"+url.PathEscape(label)+"/values", params)
}

// fetchStringList ensures a tunnel and GETs one metadata endpoint through
// it.
func (d *Datasource) fetchStringList(ctx context.Context, path string, params url.Values) ([]string, error) {
	if err := d.ensureTunnel(); err != nil {
		return nil, err
	}

	builder := requests.
		URL(d.localBaseURL()).
		Path(path).
		Client(d.httpClient)

	for key, vals := range params {
		builder = builder.Param(key, vals...)
	}

	switch d.cfg.AuthMethod {
	case "basic":
		builder = builder.BasicAuth(d.cfg.Username, d.cfg.Password)
	case "bearer":
		builder = builder.Bearer(d.cfg.BearerToken)
	}

	var envelope stringListResponse
	if err := builder.ToJSON(&envelope).Fetch(ctx); err != nil {
		if errors.Is(err, requests.ErrHandler) {
			return nil, &ParseError{Err: err}
		}
		return nil, &GatewayError{Err: err}
	}
	if envelope.Status != "success" {
		return nil, &GatewayError{Remote: envelope.Error}
	}
	return envelope.Data, nil
}
