package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Poll      PollConfig      `yaml:"poll"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Store     StoreConfig     `yaml:"store"`
	Wake      WakeConfig      `yaml:"wake"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`

	// Hosts are added manually at startup (address or hostname, optional :port)
	Hosts []string `yaml:"hosts"`
}

// ClientConfig protocol client configuration
type ClientConfig struct {
	UniqueID       string `yaml:"unique_id"`       // Sent to servers as uniqueid
	HTTPPort       int    `yaml:"http_port"`       // Server status port when the address has none
	RequestTimeout int    `yaml:"request_timeout"` // Per-request timeout in seconds
}

// PollConfig background poller configuration
type PollConfig struct {
	Enabled         *bool `yaml:"enabled"`
	Interval        int   `yaml:"interval"`          // Seconds between polls of one host
	AppListInterval int   `yaml:"app_list_interval"` // Seconds between app list refreshes
}

// DiscoveryConfig mDNS discovery configuration
type DiscoveryConfig struct {
	Enabled              *bool  `yaml:"enabled"`
	ServiceType          string `yaml:"service_type"`
	Domain               string `yaml:"domain"`
	ResolveRetryInterval int    `yaml:"resolve_retry_interval"` // Seconds between hostname lookups
}

// StoreConfig host persistence configuration
type StoreConfig struct {
	Path string `yaml:"path"` // Empty keeps hosts in memory only
}

// WakeConfig wake packet configuration
type WakeConfig struct {
	Ports     []int   `yaml:"ports"`
	RateLimit float64 `yaml:"rate_limit"` // Wake requests per second per host (API)
	RateBurst int     `yaml:"rate_burst"`
}

// WebConfig control API and metrics listener
type WebConfig struct {
	ListenAddress string `yaml:"listen_address"`
	TelemetryPath string `yaml:"telemetry_path"`
}

// LogConfig log configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultUniqueID is the client identifier servers see when none is configured
const DefaultUniqueID = "0123456789ABCDEF"

// DefaultWakePorts are the standard wake ports followed by the server listener ports
var DefaultWakePorts = []int{7, 9, 47998, 47999, 48000}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()
	config.ApplyEnvOverrides()

	return &config, nil
}

// Default returns a configuration with defaults and environment overrides applied
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	c.ApplyEnvOverrides()
	return c
}

// SetDefaults sets default values
func (c *Config) SetDefaults() {
	if c.Client.UniqueID == "" {
		c.Client.UniqueID = DefaultUniqueID
	}
	if c.Client.HTTPPort == 0 {
		c.Client.HTTPPort = 47989
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = 5
	}

	if c.Poll.Enabled == nil {
		c.Poll.Enabled = boolPtr(true)
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 3
	}
	if c.Poll.AppListInterval == 0 {
		c.Poll.AppListInterval = 60
	}

	if c.Discovery.Enabled == nil {
		c.Discovery.Enabled = boolPtr(true)
	}
	if c.Discovery.ServiceType == "" {
		c.Discovery.ServiceType = "_nvstream._tcp"
	}
	if c.Discovery.Domain == "" {
		c.Discovery.Domain = "local."
	}
	if c.Discovery.ResolveRetryInterval == 0 {
		c.Discovery.ResolveRetryInterval = 2
	}

	if len(c.Wake.Ports) == 0 {
		c.Wake.Ports = append([]int(nil), DefaultWakePorts...)
	}
	if c.Wake.RateLimit == 0 {
		c.Wake.RateLimit = 0.5
	}
	if c.Wake.RateBurst == 0 {
		c.Wake.RateBurst = 2
	}

	if c.Web.ListenAddress == "" {
		c.Web.ListenAddress = ":9090"
	}
	if c.Web.TelemetryPath == "" {
		c.Web.TelemetryPath = "/metrics"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// PollingEnabled reports whether background pollers run
func (c *Config) PollingEnabled() bool {
	return c.Poll.Enabled == nil || *c.Poll.Enabled
}

// DiscoveryEnabled reports whether mDNS discovery runs alongside polling
func (c *Config) DiscoveryEnabled() bool {
	return c.Discovery.Enabled == nil || *c.Discovery.Enabled
}

// GetRequestTimeout gets the protocol request timeout
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Client.RequestTimeout) * time.Second
}

// GetPollInterval gets the per-host poll interval
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// GetAppListInterval gets the app list refresh interval
func (c *Config) GetAppListInterval() time.Duration {
	return time.Duration(c.Poll.AppListInterval) * time.Second
}

// GetResolveRetryInterval gets the discovery hostname lookup retry interval
func (c *Config) GetResolveRetryInterval() time.Duration {
	return time.Duration(c.Discovery.ResolveRetryInterval) * time.Second
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("STREAMHOSTS_UNIQUE_ID"); val != "" {
		c.Client.UniqueID = val
	}
	if val := os.Getenv("STREAMHOSTS_HTTP_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Client.HTTPPort = i
		}
	}
	if val := os.Getenv("STREAMHOSTS_REQUEST_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Client.RequestTimeout = i
		}
	}

	if val := os.Getenv("POLL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Poll.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("POLL_INTERVAL_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Poll.Interval = i
		}
	}
	if val := os.Getenv("POLL_APP_LIST_INTERVAL_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Poll.AppListInterval = i
		}
	}

	if val := os.Getenv("DISCOVERY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Discovery.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("DISCOVERY_SERVICE_TYPE"); val != "" {
		c.Discovery.ServiceType = val
	}

	if val := os.Getenv("STREAMHOSTS_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	// Comma-separated port list, e.g. "9,47998"
	if val := os.Getenv("WAKE_PORTS"); val != "" {
		var ports []int
		for _, p := range strings.Split(val, ",") {
			if i, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && i > 0 && i < 65536 {
				ports = append(ports, i)
			}
		}
		if len(ports) > 0 {
			c.Wake.Ports = ports
		}
	}

	if val := os.Getenv("WEB_LISTEN_ADDRESS"); val != "" {
		c.Web.ListenAddress = val
	}
	if val := os.Getenv("WEB_TELEMETRY_PATH"); val != "" {
		c.Web.TelemetryPath = val
	}

	// Log config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	// Comma-separated list appended to configured hosts
	if val := os.Getenv("STREAMHOSTS_HOSTS"); val != "" {
		for _, h := range strings.Split(val, ",") {
			if h = strings.TrimSpace(h); h != "" {
				c.Hosts = append(c.Hosts, h)
			}
		}
	}
}

func boolPtr(b bool) *bool { return &b }
