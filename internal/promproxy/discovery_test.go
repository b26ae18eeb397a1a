package promproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func stringListHandler(values []string, requests *[]*http.Request) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests = append(*requests, r)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   values,
		})
	}
}

func TestMetrics(t *testing.T) {
	var reqs []*http.Request
	names := []string{"up", "node_cpu_seconds_total", "node_memory_bytes", "go_goroutines"}
	backend := httptest.NewServer(stringListHandler(names, &reqs))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)

	got, err := ds.Metrics(context.Background(), "")
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if !reflect.DeepEqual(got, names) {
		t.Errorf("unfiltered metrics = %v", got)
	}
	if reqs[0].URL.Path != "/api/v1/label/__name__/values" {
		t.Errorf("unexpected path: %s", reqs[0].URL.Path)
	}
}

func TestMetricsFilter(t *testing.T) {
	names := []string{"up", "node_cpu_seconds_total", "node_memory_bytes", "go_goroutines"}
	backend := httptest.NewServer(stringListHandler(names, nil))
	defer backend.Close()

	cases := []struct {
		filter string
		want   []string
	}{
		{"^node_", []string{"node_cpu_seconds_total", "node_memory_bytes"}},
		{"cpu|memory", []string{"node_cpu_seconds_total", "node_memory_bytes"}},
		// Does not compile as a regexp, falls back to substring match.
		{"node_[", nil},
		{"goroutine", []string{"go_goroutines"}},
		{"absent", nil},
	}

	for _, tc := range cases {
		ds, _ := newTestDatasource(t, backend)
		got, err := ds.Metrics(context.Background(), tc.filter)
		if err != nil {
			t.Fatalf("Metrics(%q) failed: %v", tc.filter, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Metrics(%q) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestLabelNames(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(stringListHandler([]string{"__name__", "instance", "job"}, &reqs))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	got, err := ds.LabelNames(context.Background())
	if err != nil {
		t.Fatalf("LabelNames failed: %v", err)
	}
	if len(got) != 3 || got[2] != "job" {
		t.Errorf("labels = %v", got)
	}
	if reqs[0].URL.Path != "/api/v1/labels" {
		t.Errorf("unexpected path: %s", reqs[0].URL.Path)
	}
}

func TestLabelValues(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(stringListHandler([]string{"node-1", "node-2"}, &reqs))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	got, err := ds.LabelValues(context.Background(), "instance", "up")
	if err != nil {
		t.Fatalf("LabelValues failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("values = %v", got)
	}

	r := reqs[0]
	if r.URL.Path != "/api/v1/label/instance/values" {
		t.Errorf("unexpected path: %s", r.URL.Path)
	}
	if r.URL.Query().Get("match[]") != "up" {
		t.Errorf("match[] param missing: %s", r.URL.RawQuery)
	}
}

func TestLabelValuesRequiresLabel(t *testing.T) {
	ds, err := New(testDatasourceConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = ds.LabelValues(context.Background(), "", "")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Errorf("expected *RequestError, got %T: %v", err, err)
	}
}

func TestDiscoveryRemoteError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status": "error",
			"error":  "label storage unavailable",
		})
	}))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	_, err := ds.LabelNames(context.Background())

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *GatewayError, got %T: %v", err, err)
	}
	if gwErr.Remote != "label storage unavailable" {
		t.Errorf("remote message not carried: %q", gwErr.Remote)
	}
}

func TestDiscoveryMalformedBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	_, err := ds.LabelNames(context.Background())

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}

func TestDiscoveryAuthAttached(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(stringListHandler(nil, &reqs))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	ds.cfg.AuthMethod = "bearer"
	ds.cfg.BearerToken = "tok"

	if _, err := ds.LabelNames(context.Background()); err != nil {
		t.Fatalf("LabelNames failed: %v", err)
	}
	if got := reqs[0].Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("bearer token not attached: %q", got)
	}
}
