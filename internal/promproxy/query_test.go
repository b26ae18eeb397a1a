package promproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"30s", 30},
		{"5m", 300},
		{"1h", 3600},
		{"2d", 172800},
		{"", 0},
		{"m", 0},
		{"5x", 0},
		{"abc", 0},
		{"-5m", -300}, // negative parses; calculateStep rejects non-positive
	}
	for _, tc := range cases {
		if got := parseInterval(tc.in); got != tc.want {
			t.Errorf("parseInterval(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCalculateStep(t *testing.T) {
	base := time.Unix(0, 0)

	cases := []struct {
		name      string
		from, to  time.Time
		maxPoints int64
		interval  string
		want      int64
	}{
		{"explicit interval wins", base, base.Add(time.Hour), 100, "5m", 300},
		{"explicit interval ignores range", base, base.Add(24 * time.Hour), 10000, "5m", 300},
		{"derived from maxPoints", base, base.Add(1000 * time.Second), 100, "", 10},
		{"unparseable interval falls back", base, base.Add(1000 * time.Second), 100, "banana", 10},
		{"negative interval falls back", base, base.Add(1000 * time.Second), 100, "-5m", 10},
		{"floors at one", base, base.Add(10 * time.Second), 100000, "", 1},
		{"zero range floors at one", base, base, 100, "", 1},
		{"zero maxPoints guarded", base, base.Add(time.Minute), 0, "", 60},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := calculateStep(tc.from, tc.to, tc.maxPoints, tc.interval); got != tc.want {
				t.Errorf("calculateStep = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBuildQueryParamsRange(t *testing.T) {
	ds, err := New(testDatasourceConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	spec := QuerySpec{
		Expr:          "up",
		Range:         true,
		From:          time.Unix(1000, 0),
		To:            time.Unix(2000, 0),
		MaxDataPoints: 100,
	}

	endpoint, params := ds.buildQueryParams(spec)
	if endpoint != "/api/v1/query_range" {
		t.Errorf("expected range endpoint, got %q", endpoint)
	}
	if params.Get("query") != "up" {
		t.Errorf("query param = %q", params.Get("query"))
	}
	if params.Get("start") != "1000" || params.Get("end") != "2000" {
		t.Errorf("unexpected bounds: start=%q end=%q", params.Get("start"), params.Get("end"))
	}
	if params.Get("step") != "10" {
		t.Errorf("step = %q, want 10", params.Get("step"))
	}
}

func TestBuildQueryParamsInstant(t *testing.T) {
	ds, err := New(testDatasourceConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Both flags set: instant wins
	spec := QuerySpec{
		Expr:    "up",
		Range:   true,
		Instant: true,
		To:      time.Unix(2000, 0),
	}

	endpoint, params := ds.buildQueryParams(spec)
	if endpoint != "/api/v1/query" {
		t.Errorf("expected instant endpoint, got %q", endpoint)
	}
	if params.Get("time") != "2000" {
		t.Errorf("time param = %q", params.Get("time"))
	}
	if params.Get("step") != "" {
		t.Errorf("instant query should have no step, got %q", params.Get("step"))
	}
}

func TestBuildQueryParamsCustomAdditive(t *testing.T) {
	cfg := testDatasourceConfig()
	cfg.CustomQueryParameters = "timeout=60s&query=extra"
	ds, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, params := ds.buildQueryParams(QuerySpec{Expr: "up", To: time.Unix(0, 0)})

	if params.Get("timeout") != "60s" {
		t.Errorf("custom param missing: %v", params)
	}
	// Duplicate keys are additive, not overriding
	if got := params["query"]; len(got) != 2 || got[0] != "up" || got[1] != "extra" {
		t.Errorf("expected additive query values [up extra], got %v", got)
	}
}

// promHandler fakes the Prometheus query endpoints for engine tests.
func promHandler(t *testing.T, requests *[]*http.Request, bodies *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if requests != nil {
			*requests = append(*requests, r)
		}
		if bodies != nil {
			*bodies = append(*bodies, string(body))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"resultType": "vector",
				"result": []interface{}{
					map[string]interface{}{
						"metric": map[string]string{"job": "node"},
						"value":  []interface{}{1000, "1"},
					},
				},
			},
		})
	}
}

func TestRunQueriesGET(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(promHandler(t, &reqs, nil))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)

	results := ds.RunQueries(context.Background(), []QuerySpec{{
		RefID:         "A",
		Expr:          "up",
		Range:         true,
		From:          time.Unix(0, 0),
		To:            time.Unix(600, 0),
		MaxDataPoints: 60,
	}})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("query failed: %v", res.Err)
	}
	if res.RefID != "A" {
		t.Errorf("refID = %q", res.RefID)
	}
	if len(res.Frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(res.Frames))
	}

	if len(reqs) != 1 {
		t.Fatalf("expected 1 backend request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.Method != http.MethodGet {
		t.Errorf("expected GET, got %s", r.Method)
	}
	if r.URL.Path != "/api/v1/query_range" {
		t.Errorf("unexpected path: %s", r.URL.Path)
	}
	if r.URL.Query().Get("query") != "up" {
		t.Errorf("query param missing: %s", r.URL.RawQuery)
	}
}

func TestRunQueriesPOST(t *testing.T) {
	var reqs []*http.Request
	var bodies []string
	backend := httptest.NewServer(promHandler(t, &reqs, &bodies))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	ds.cfg.HTTPMethod = http.MethodPost

	results := ds.RunQueries(context.Background(), []QuerySpec{{
		RefID: "A",
		Expr:  "up",
		To:    time.Unix(100, 0),
	}})
	if results[0].Err != nil {
		t.Fatalf("query failed: %v", results[0].Err)
	}

	r := reqs[0]
	if r.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", r.Method)
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type: %q", ct)
	}
	if bodies[0] != "query=up&time=100" {
		t.Errorf("unexpected form body: %q", bodies[0])
	}
	if r.URL.Path != "/api/v1/query" {
		t.Errorf("unexpected path: %s", r.URL.Path)
	}
}

func TestRunQueriesBasicAuth(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(promHandler(t, &reqs, nil))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	ds.cfg.AuthMethod = "basic"
	ds.cfg.Username = "prom"
	ds.cfg.Password = "secret"

	ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A", Expr: "up", To: time.Unix(0, 0)}})

	user, pass, ok := reqs[0].BasicAuth()
	if !ok || user != "prom" || pass != "secret" {
		t.Errorf("basic auth not attached: ok=%v user=%q", ok, user)
	}
}

func TestRunQueriesBearerAuth(t *testing.T) {
	var reqs []*http.Request
	backend := httptest.NewServer(promHandler(t, &reqs, nil))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	ds.cfg.AuthMethod = "bearer"
	ds.cfg.BearerToken = "tok123"

	ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A", Expr: "up", To: time.Unix(0, 0)}})

	if got := reqs[0].Header.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("bearer token not attached: %q", got)
	}
}

func TestRunQueriesEmptyExpr(t *testing.T) {
	backend := httptest.NewServer(promHandler(t, nil, nil))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	results := ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A"}})
	if results[0].Err != nil || results[0].Frames != nil {
		t.Errorf("empty expr should yield empty result, got %+v", results[0])
	}
}

func TestRunQueriesTunnelFailureHitsAllResults(t *testing.T) {
	ds, err := New(testDatasourceConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ds.newTunnel = func() (tunnel, error) { return nil, errors.New("no route") }

	results := ds.RunQueries(context.Background(), []QuerySpec{
		{RefID: "A", Expr: "up"},
		{RefID: "B", Expr: "up"},
	})
	for _, res := range results {
		if res.Err == nil {
			t.Errorf("result %s should carry the tunnel error", res.RefID)
		}
	}
}

func TestRunQueriesRemoteRejection(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "error",
			"error":  "parse error: unexpected token",
		})
	}))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	results := ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A", Expr: "up{", To: time.Unix(0, 0)}})

	var gwErr *GatewayError
	if !errors.As(results[0].Err, &gwErr) {
		t.Fatalf("expected *GatewayError, got %T: %v", results[0].Err, results[0].Err)
	}
	if gwErr.Remote != "parse error: unexpected token" {
		t.Errorf("remote message not carried: %q", gwErr.Remote)
	}
}

func TestRunQueriesMalformedBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer backend.Close()

	ds, _ := newTestDatasource(t, backend)
	results := ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A", Expr: "up", To: time.Unix(0, 0)}})

	var parseErr *ParseError
	if !errors.As(results[0].Err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", results[0].Err, results[0].Err)
	}
}

func TestRunQueriesTransportFailure(t *testing.T) {
	backend := httptest.NewServer(promHandler(t, nil, nil))
	ds, _ := newTestDatasource(t, backend)
	backend.Close() // connection refused from now on

	results := ds.RunQueries(context.Background(), []QuerySpec{{RefID: "A", Expr: "up", To: time.Unix(0, 0)}})

	var gwErr *GatewayError
	if !errors.As(results[0].Err, &gwErr) {
		t.Fatalf("expected *GatewayError, got %T: %v", results[0].Err, results[0].Err)
	}
	if gwErr.Remote != "" {
		t.Errorf("transport failure should not carry a remote message, got %q", gwErr.Remote)
	}
}

func TestRunQueriesHonorsContext(t *testing.T) {
	blocked := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer backend.Close()
	defer close(blocked)

	ds, _ := newTestDatasource(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := ds.RunQueries(ctx, []QuerySpec{{RefID: "A", Expr: "up", To: time.Unix(0, 0)}})
	if results[0].Err == nil {
		t.Error("cancelled query should fail")
	}
}
