// resource.go implements the generic resource proxy: arbitrary paths are
// relayed to Prometheus through the tunnel with status, headers and body
// passed back verbatim. The one transformation is that a JSON object body
// on a POST is flattened into the URL-encoded form Prometheus expects for
// write-style calls.

package promproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ResourceRequest is an arbitrary call to relay to Prometheus.
type ResourceRequest struct {
	Method  string
	Path    string
	Body    []byte
	Headers http.Header
}

// ResourceResponse carries the relayed reply.
type ResourceResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// CallResource forwards one request through the tunnel. The reserved path
// "test-ssh" probes SSH connectivity without touching Prometheus.
func (d *Datasource) CallResource(ctx context.Context, req ResourceRequest) (ResourceResponse, error) {
	if strings.Trim(req.Path, "/") == "test-ssh" {
		return d.testSSH(), nil
	}

	if err := d.ensureTunnel(); err != nil {
		return ResourceResponse{}, err
	}

	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if _, err := url.Parse(path); err != nil {
		return ResourceResponse{}, &RequestError{Err: fmt.Errorf("malformed resource path %q: %w", req.Path, err)}
	}
	targetURL := d.localBaseURL() + path

	body, contentType := resourceBody(req)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, targetURL, body)
	if err != nil {
		return ResourceResponse{}, &RequestError{Err: err}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	d.addAuth(httpReq)

	for key, vals := range req.Headers {
		// Keep our Content-Type when the body was re-encoded
		if contentType != "" && strings.EqualFold(key, "Content-Type") {
			continue
		}
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return ResourceResponse{}, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ResourceResponse{}, &GatewayError{Err: fmt.Errorf("read response: %w", err)}
	}

	return ResourceResponse{
		Status:  resp.StatusCode,
		Headers: resp.Header.Clone(),
		Body:    respBody,
	}, nil
}

// resourceBody prepares the outbound body. A JSON object accompanying a
// POST is flattened into form encoding with scalars stringified; everything
// else passes through unchanged.
func resourceBody(req ResourceRequest) (io.Reader, string) {
	if len(req.Body) == 0 {
		return nil, ""
	}
	if req.Method != http.MethodPost {
		return bytes.NewReader(req.Body), ""
	}

	var jsonBody map[string]interface{}
	if err := json.Unmarshal(req.Body, &jsonBody); err != nil {
		return bytes.NewReader(req.Body), ""
	}

	form := url.Values{}
	for k, v := range jsonBody {
		switch val := v.(type) {
		case string:
			form.Set(k, val)
		case float64:
			form.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
		case bool:
			form.Set(k, strconv.FormatBool(val))
		default:
			form.Set(k, fmt.Sprintf("%v", val))
		}
	}
	return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
}

// testSSH probes SSH connectivity only, without creating a tunnel. The
// outcome is always a 200 with a structured status payload, matching the
// configuration UI's expectations.
func (d *Datasource) testSSH() ResourceResponse {
	probeCfg := d.tunnelConfig()
	probeCfg.DestHost = "localhost"
	probeCfg.DestPort = 22

	var payload string
	if err := d.probeSSH(probeCfg); err != nil {
		payload = fmt.Sprintf(`{"status": "error", "message": "SSH connection failed: %s"}`, err)
	} else {
		payload = `{"status": "ok", "message": "SSH connection successful"}`
	}

	return ResourceResponse{
		Status:  http.StatusOK,
		Headers: http.Header{"Content-Type": {"application/json"}},
		Body:    []byte(payload),
	}
}
