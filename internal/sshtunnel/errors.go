package sshtunnel

import (
	"errors"
	"fmt"
	"net"
)

// AuthError indicates that no usable credential was configured, key material
// could not be parsed, or the SSH server rejected the credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ssh auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectError indicates that the SSH endpoint was unreachable or the
// connection attempt timed out.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ssh connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// BindError indicates that no local listener port could be allocated.
type BindError struct {
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind local listener: %v", e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// classifyDialError maps an ssh.Dial failure to the error taxonomy.
// Network-level failures (refused, unreachable, timeout) surface as
// *net.OpError; anything else happened during the handshake, which at this
// point means the server rejected our credentials.
func classifyDialError(addr string, err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ConnectError{Addr: addr, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectError{Addr: addr, Err: err}
	}
	return &AuthError{Err: err}
}
