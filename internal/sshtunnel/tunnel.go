// tunnel.go implements local-to-remote SSH port forwarding for the proxy.
//
// A Tunnel owns one authenticated SSH session and a loopback listener bound
// to an ephemeral port. Every connection accepted on the listener is relayed
// through a direct-tcpip channel to one fixed destination behind the SSH
// host. The query engine points its HTTP client at LocalAddr and never
// touches the SSH session directly.

package sshtunnel

import (
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// dialTimeout bounds tunnel construction (TCP connect + handshake).
	dialTimeout = 30 * time.Second

	// probeTimeout bounds the standalone connectivity probe.
	probeTimeout = 10 * time.Second

	// keepaliveTimeout bounds the liveness round trip in IsAlive. The
	// keepalive itself has no protocol-level deadline, so a stalled
	// session would otherwise block callers indefinitely.
	keepaliveTimeout = 5 * time.Second

	keepaliveRequest = "keepalive@openssh.com"
)

// AuthMethod selects which credential variant of Config is used.
type AuthMethod string

const (
	AuthPassword   AuthMethod = "password"
	AuthPrivateKey AuthMethod = "private-key"
)

// Config describes one tunnel: the SSH endpoint and identity, exactly one
// credential variant, and the fixed destination the tunnel forwards to.
type Config struct {
	Host string // SSH server host
	Port int    // SSH server port
	User string

	Auth          AuthMethod
	Password      string // used when Auth is AuthPassword
	PrivateKey    string // PEM key material, used when Auth is AuthPrivateKey
	KeyPassphrase string // optional passphrase for PrivateKey

	DestHost string // destination behind the SSH host
	DestPort int
}

// Tunnel is a live forwarding path. Once closed it is never reused; callers
// construct a new Tunnel instead.
type Tunnel struct {
	cfg       Config
	client    *ssh.Client
	listener  net.Listener
	localAddr string
	done      chan struct{}

	mu    sync.Mutex
	alive bool
}

// New authenticates to the SSH endpoint, binds a loopback listener on an
// ephemeral port and starts the accept loop. Failures are typed: *AuthError
// for credential problems, *ConnectError for unreachable endpoints and
// *BindError when no local port could be allocated. No partial resources
// are left behind on error.
func New(cfg Config) (*Tunnel, error) {
	methods, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, &BindError{Err: err}
	}

	t := &Tunnel{
		cfg:       cfg,
		client:    client,
		listener:  listener,
		localAddr: listener.Addr().String(),
		done:      make(chan struct{}),
		alive:     true,
	}

	go t.acceptLoop()

	log.Printf("[sshtunnel] tunnel up: %s -> %s via %s", t.localAddr, t.destAddr(), addr)
	return t, nil
}

// authMethods builds the SSH auth methods for the configured credential
// variant. Exactly one variant must yield a usable credential.
func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	switch cfg.Auth {
	case AuthPassword:
		if cfg.Password != "" {
			methods = append(methods, ssh.Password(cfg.Password))
		}
	default:
		if cfg.PrivateKey != "" {
			signer, err := parsePrivateKey(cfg.PrivateKey, cfg.KeyPassphrase)
			if err != nil {
				return nil, &AuthError{Err: fmt.Errorf("parse private key: %w", err)}
			}
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if len(methods) == 0 {
		return nil, &AuthError{Err: fmt.Errorf("no usable credential configured")}
	}
	return methods, nil
}

func parsePrivateKey(key, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	}
	return ssh.ParsePrivateKey([]byte(key))
}

// Probe verifies SSH connectivity without creating a tunnel: it dials,
// authenticates, round-trips a keepalive and disconnects. Used by the
// engine's test-ssh resource endpoint.
func Probe(cfg Config) error {
	methods, err := authMethods(cfg)
	if err != nil {
		return err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         probeTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return classifyDialError(addr, err)
	}
	defer client.Close()

	if _, _, err := client.SendRequest(keepaliveRequest, true, nil); err != nil {
		return &ConnectError{Addr: addr, Err: fmt.Errorf("keepalive after connect: %w", err)}
	}
	return nil
}

func (t *Tunnel) destAddr() string {
	return net.JoinHostPort(t.cfg.DestHost, strconv.Itoa(t.cfg.DestPort))
}

// acceptLoop accepts local connections until the tunnel is closed. Each
// accepted connection is forwarded in its own goroutine. Accept errors
// after Close are expected (the listener was closed to unblock us) and
// are swallowed; errors while still alive are transient and the loop
// keeps accepting.
func (t *Tunnel) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		go t.forward(conn)
	}
}

// forward relays one local connection through a direct-tcpip channel to the
// destination. A dial failure closes the local connection and ends only this
// forwarding task; the tunnel stays up. On success both directions are
// copied concurrently and the task finishes when both have completed.
func (t *Tunnel) forward(local net.Conn) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.destAddr())
	if err != nil {
		log.Printf("[sshtunnel] dial %s through tunnel failed: %v", t.destAddr(), err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		defer func() { done <- struct{}{} }()
		io.Copy(dst, src)
	}
	go cp(remote, local)
	go cp(local, remote)

	<-done
	<-done
}

// LocalAddr returns the bound loopback endpoint, e.g. "127.0.0.1:41231".
func (t *Tunnel) LocalAddr() string {
	return t.localAddr
}

// IsAlive reports whether the tunnel is usable. A closed tunnel is dead
// without any network traffic; otherwise a keepalive request is
// round-tripped over the session, bounded by keepaliveTimeout. Every call
// re-verifies; nothing is cached.
func (t *Tunnel) IsAlive() bool {
	t.mu.Lock()
	if !t.alive {
		t.mu.Unlock()
		return false
	}
	client := t.client
	t.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest(keepaliveRequest, true, nil)
		result <- err
	}()

	select {
	case err := <-result:
		return err == nil
	case <-time.After(keepaliveTimeout):
		return false
	}
}

// Close shuts the tunnel down: it signals the accept loop, closes the local
// listener (which unblocks a pending Accept) and the SSH session. Close is
// idempotent and safe for concurrent use.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.alive {
		return nil
	}
	t.alive = false
	close(t.done)

	var firstErr error
	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			firstErr = err
		}
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	log.Printf("[sshtunnel] tunnel closed: %s", t.localAddr)
	return firstErr
}
