package promproxy

import "fmt"

// GatewayError indicates that the tunnel was usable but the HTTP round trip
// to Prometheus failed, or Prometheus returned a non-success envelope. When
// Remote is set the request reached Prometheus and was rejected with that
// message; otherwise Err holds the transport failure.
type GatewayError struct {
	Remote string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("prometheus: %s", e.Remote)
	}
	return fmt.Sprintf("prometheus request failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ParseError indicates a malformed response body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse prometheus response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RequestError indicates that the caller supplied an unparseable query or a
// malformed resource path.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("bad request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
