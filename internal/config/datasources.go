package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SSHConfig holds the SSH endpoint and credentials for one datasource.
// AuthMethod selects the credential variant: "password" or "private-key".
type SSHConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	AuthMethod    string `yaml:"authMethod"`
	Password      string `yaml:"password"`
	PrivateKey    string `yaml:"privateKey"`
	KeyPassphrase string `yaml:"keyPassphrase"`
}

// TLSConfig holds TLS options for the hop from the tunnel's local endpoint
// to the Prometheus server (applied when the configured URL is https).
type TLSConfig struct {
	SkipVerify bool   `yaml:"skipVerify"`
	CACert     string `yaml:"caCert"`
	ClientCert string `yaml:"clientCert"`
	ClientKey  string `yaml:"clientKey"`
}

// Datasource describes one tunneled Prometheus endpoint.
type Datasource struct {
	Name string    `yaml:"name"`
	SSH  SSHConfig `yaml:"ssh"`

	// URL of the Prometheus server as seen from the SSH host.
	URL string `yaml:"url"`

	// AuthMethod for the Prometheus HTTP API: "none", "basic" or "bearer".
	AuthMethod  string `yaml:"authMethod"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BearerToken string `yaml:"bearerToken"`

	TLS TLSConfig `yaml:"tls"`

	HTTPMethod            string `yaml:"httpMethod"`
	CustomQueryParameters string `yaml:"customQueryParameters"`
	TimeoutSeconds        int    `yaml:"timeoutSeconds"`
}

type datasourceFile struct {
	Datasources []Datasource `yaml:"datasources"`
}

// LoadDatasources reads the YAML datasource definitions file, applies
// defaults and validates each entry.
func LoadDatasources(path string) ([]Datasource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasource file: %w", err)
	}
	return ParseDatasources(data)
}

// ParseDatasources parses YAML datasource definitions, applies defaults and
// validates each entry.
func ParseDatasources(data []byte) ([]Datasource, error) {
	var file datasourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse datasource file: %w", err)
	}

	seen := make(map[string]bool, len(file.Datasources))
	for i := range file.Datasources {
		ds := &file.Datasources[i]
		ds.applyDefaults()
		if err := ds.validate(); err != nil {
			return nil, fmt.Errorf("datasource %d (%q): %w", i, ds.Name, err)
		}
		if seen[ds.Name] {
			return nil, fmt.Errorf("duplicate datasource name %q", ds.Name)
		}
		seen[ds.Name] = true
	}
	return file.Datasources, nil
}

func (ds *Datasource) applyDefaults() {
	if ds.SSH.Port == 0 {
		ds.SSH.Port = 22
	}
	if ds.SSH.AuthMethod == "" {
		ds.SSH.AuthMethod = "private-key"
	}
	if ds.URL == "" {
		ds.URL = "http://127.0.0.1:9090"
	}
	if ds.AuthMethod == "" {
		ds.AuthMethod = "none"
	}
	if ds.HTTPMethod == "" {
		ds.HTTPMethod = "GET"
	}
	if ds.TimeoutSeconds == 0 {
		ds.TimeoutSeconds = 30
	}
}

func (ds *Datasource) validate() error {
	if ds.Name == "" {
		return fmt.Errorf("name is required")
	}
	if ds.SSH.Host == "" {
		return fmt.Errorf("ssh.host is required")
	}
	if ds.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	switch ds.SSH.AuthMethod {
	case "password", "private-key":
	default:
		return fmt.Errorf("ssh.authMethod must be \"password\" or \"private-key\", got %q", ds.SSH.AuthMethod)
	}
	switch ds.AuthMethod {
	case "none", "basic", "bearer":
	default:
		return fmt.Errorf("authMethod must be \"none\", \"basic\" or \"bearer\", got %q", ds.AuthMethod)
	}
	switch strings.ToUpper(ds.HTTPMethod) {
	case "GET", "POST":
		ds.HTTPMethod = strings.ToUpper(ds.HTTPMethod)
	default:
		return fmt.Errorf("httpMethod must be GET or POST, got %q", ds.HTTPMethod)
	}
	u, err := url.Parse(ds.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
