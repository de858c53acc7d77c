package server

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultManifest is precached when the configuration lists no assets
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.webmanifest",
	"/fotos/logo.png",
	"/fotos/unrankt.png",
}

// Config represents a server config
type Config struct {
	Server struct {
		ListenAddr    string    `yaml:"listen"`
		TLSListenAddr string    `yaml:"tlsListen"`
		TLSOnly       bool      `yaml:"tlsOnly"`
		TLS           TLSConfig `yaml:"tls"`
		// Origin is the public origin clients load the site from
		Origin string `yaml:"origin"`
		// Upstream is where same-origin fetches are sent
		Upstream     string `yaml:"upstream"`
		FetchTimeout string `yaml:"fetchTimeout"`
		// InstallRetry is the pause between failed install attempts
		InstallRetry string `yaml:"installRetry"`
	} `yaml:"server"`

	Cache struct {
		Version              string   `yaml:"version"`
		Manifest             []string `yaml:"manifest"`
		IndexPath            string   `yaml:"indexPath"`
		ConfigPath           string   `yaml:"configPath"`
		SensitiveSegments    []string `yaml:"sensitiveSegments"`
		StaleWhileRevalidate []string `yaml:"staleWhileRevalidate"`
		Backend              string   `yaml:"backend"`
		Dir                  string   `yaml:"dir"`
	} `yaml:"cache"`

	Verbose bool `yaml:"verbose"`

	// compiled
	origin       *url.URL
	upstream     *url.URL
	fetchTimeout time.Duration
	installRetry time.Duration
}

// TLSConfig represents a TLS configuration
type TLSConfig struct {
	KeyFile  string `yaml:"key"`
	CertFile string `yaml:"cert"`
}

// Enabled reports whether both key and certificate are set
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// Load reads the configuration file at path and applies defaults.
// The result is not validated so command line flags can still fill in
// missing fields; New validates before the server is built.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return decode(b)
}

// Parse decodes and validates a YAML configuration
func Parse(b []byte) (*Config, error) {
	cfg, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(b []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	cfg.applyDefaults()
	return cfg, nil
}

// NewConfig returns a configuration with every default applied and no
// origin or upstream set
func NewConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.TLSListenAddr == "" {
		c.Server.TLSListenAddr = ":8443"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "halal-rating-v6"
	}
	if len(c.Cache.Manifest) == 0 {
		c.Cache.Manifest = append([]string(nil), DefaultManifest...)
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = cache.BackendMemory
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "./data/cache"
	}
	if c.Server.InstallRetry == "" {
		c.Server.InstallRetry = "1m"
	}
}

// Validate applies defaults and checks the configuration.
// It must be called again after fields are changed.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Server.Origin == "" {
		return errors.New("server.origin is required")
	}
	origin, err := parseAbsURL(c.Server.Origin)
	if err != nil {
		return errors.Wrap(err, "server.origin")
	}
	origin.Path, origin.RawQuery, origin.Fragment = "", "", ""
	c.origin = origin

	if c.Server.Upstream == "" {
		return errors.New("server.upstream is required")
	}
	upstream, err := parseAbsURL(c.Server.Upstream)
	if err != nil {
		return errors.Wrap(err, "server.upstream")
	}
	c.upstream = upstream

	c.fetchTimeout = 0
	if c.Server.FetchTimeout != "" {
		d, err := time.ParseDuration(c.Server.FetchTimeout)
		if err != nil {
			return errors.Wrap(err, "server.fetchTimeout")
		}
		if d < 0 {
			return errors.New("server.fetchTimeout must not be negative")
		}
		c.fetchTimeout = d
	}

	d, err := time.ParseDuration(c.Server.InstallRetry)
	if err != nil {
		return errors.Wrap(err, "server.installRetry")
	}
	if d <= 0 {
		return errors.New("server.installRetry must be positive")
	}
	c.installRetry = d

	for i, p := range c.Cache.Manifest {
		if !strings.HasPrefix(p, "/") {
			return errors.Errorf("cache.manifest[%d]: path %q must start with /", i, p)
		}
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendLevelDB:
	default:
		return errors.Errorf("cache.backend: %q not supported", c.Cache.Backend)
	}

	return nil
}

// Origin returns the parsed public origin
func (c *Config) Origin() *url.URL {
	return c.origin
}

// Upstream returns the parsed upstream URL
func (c *Config) Upstream() *url.URL {
	return c.upstream
}

// FetchTimeout returns the network fetch timeout, 0 for none
func (c *Config) FetchTimeout() time.Duration {
	return c.fetchTimeout
}

// InstallRetry returns the pause between failed install attempts
func (c *Config) InstallRetry() time.Duration {
	return c.installRetry
}

func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("%q must be an http(s) URL", raw)
	}
	if u.Host == "" {
		return nil, errors.Errorf("%q has no host", raw)
	}
	return u, nil
}
