// datasource.go owns the tunnel lifecycle policy for one datasource:
// create-on-demand, reuse-while-alive, recreate-on-failure. The shared
// tunnel pointer is guarded by one mutex; check-alive, close-if-stale,
// construct and install happen as a single critical section, so concurrent
// callers never observe two half-built tunnels.

package promproxy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/promtun/promtun/internal/config"
	"github.com/promtun/promtun/internal/sshtunnel"
)

// tunnel is the slice of *sshtunnel.Tunnel the engine depends on. Tests
// substitute fakes through the datasource's newTunnel factory.
type tunnel interface {
	LocalAddr() string
	IsAlive() bool
	Close() error
}

// Datasource proxies time-series queries for one configured Prometheus
// endpoint reachable through one SSH tunnel.
type Datasource struct {
	cfg        config.Datasource
	scheme     string // scheme of the configured Prometheus URL
	destHost   string // destination parsed from the URL
	destPort   int
	httpClient *http.Client

	// newTunnel constructs the tunnel and probeSSH tests connectivity;
	// both are replaced in tests.
	newTunnel func() (tunnel, error)
	probeSSH  func(sshtunnel.Config) error

	mu  sync.Mutex
	tun tunnel
}

// New validates the datasource configuration, prepares the TLS-aware HTTP
// client and returns a Datasource. No tunnel is established yet; that
// happens on the first query or health check.
func New(cfg config.Datasource) (*Datasource, error) {
	promURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid prometheus URL: %w", err)
	}

	scheme := promURL.Scheme
	if scheme == "" {
		scheme = "http"
	}
	port := promURL.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	destPort, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid prometheus URL port %q: %w", port, err)
	}

	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	d := &Datasource{
		cfg:      cfg,
		scheme:   scheme,
		destHost: promURL.Hostname(),
		destPort: destPort,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}
	d.newTunnel = d.dialTunnel
	d.probeSSH = sshtunnel.Probe
	return d, nil
}

// buildTLSConfig assembles TLS options for the hop from the tunnel's local
// endpoint to Prometheus.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.SkipVerify,
	}

	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.ClientCert), []byte(cfg.ClientKey))
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// tunnelConfig maps the datasource settings onto a tunnel descriptor.
func (d *Datasource) tunnelConfig() sshtunnel.Config {
	cfg := sshtunnel.Config{
		Host:     d.cfg.SSH.Host,
		Port:     d.cfg.SSH.Port,
		User:     d.cfg.SSH.User,
		Auth:     sshtunnel.AuthMethod(d.cfg.SSH.AuthMethod),
		DestHost: d.destHost,
		DestPort: d.destPort,
	}
	if cfg.Auth == sshtunnel.AuthPassword {
		cfg.Password = d.cfg.SSH.Password
	} else {
		cfg.PrivateKey = d.cfg.SSH.PrivateKey
		cfg.KeyPassphrase = d.cfg.SSH.KeyPassphrase
	}
	return cfg
}

func (d *Datasource) dialTunnel() (tunnel, error) {
	return sshtunnel.New(d.tunnelConfig())
}

// ensureTunnel reuses the current tunnel when it is alive; otherwise it
// closes and discards the stale one and constructs a replacement. At most
// one (re)construction runs at a time per datasource.
func (d *Datasource) ensureTunnel() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun != nil && d.tun.IsAlive() {
		return nil
	}

	if d.tun != nil {
		d.tun.Close()
		d.tun = nil
	}

	tun, err := d.newTunnel()
	if err != nil {
		return err
	}
	d.tun = tun

	log.Printf("[promproxy] tunnel established for %q via %s", d.cfg.Name, d.cfg.SSH.Host)
	return nil
}

// localBaseURL returns the scheme-qualified tunnel endpoint to target,
// e.g. "http://127.0.0.1:41231". Callers must have ensured a tunnel first.
func (d *Datasource) localBaseURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tun == nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", d.scheme, d.tun.LocalAddr())
}

// addAuth attaches the configured Prometheus credentials to a request.
func (d *Datasource) addAuth(req *http.Request) {
	switch d.cfg.AuthMethod {
	case "basic":
		if d.cfg.Username != "" || d.cfg.Password != "" {
			req.SetBasicAuth(d.cfg.Username, d.cfg.Password)
		}
	case "bearer":
		if d.cfg.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+d.cfg.BearerToken)
		}
	}
}

// Name returns the configured datasource name.
func (d *Datasource) Name() string {
	return d.cfg.Name
}

// Dispose closes any live tunnel. Called once when the datasource is torn
// down.
func (d *Datasource) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun != nil {
		d.tun.Close()
		d.tun = nil
	}
}
