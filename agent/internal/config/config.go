package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/detqc/agent/internal/check"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCycleInterval = 30 * time.Second
	DefaultWorkers       = 4
	DefaultStoreTTL      = 5 * time.Minute
	DefaultMetricsAddr   = ":9464"

	DefaultKind             = check.KindMeanInRange
	DefaultLow              = 1e4
	DefaultHigh             = 5e4
	DefaultMinEntries       = 1
	DefaultMaxEmptyFraction = 0.1

	// DefaultMetric is evaluated when the metrics section is absent.
	DefaultMetric = "nTrackletsTF"

	DefaultMaxHits          = 64
	DefaultDistributionName = "mcmOccupancy"
	DefaultMapName          = "mcmOccupancyMap"
	DefaultAmplitudeName    = "mcmAmplitude"
	DefaultAmplitudeMax     = 1024.0

	DefaultAlertCooldown = 15 * time.Minute
)

// Store source kinds.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config is the top-level detqc configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// CycleInterval controls how often serve runs an evaluation cycle.
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// Workers bounds how many metrics are evaluated in parallel.
	Workers int `yaml:"workers"`

	// MetricsAddr is the listen address for the self-metrics endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Store configures where aggregates are read from.
	Store StoreConfig `yaml:"store"`

	// Metrics maps a histogram name to its evaluation bounds.
	Metrics map[string]MetricConfig `yaml:"metrics"`

	// Occupancy configures the per-unit occupancy grouping.
	Occupancy OccupancyConfig `yaml:"occupancy"`

	// Alerts configures expert-on-duty notifications.
	Alerts AlertsConfig `yaml:"alerts"`
}

// StoreConfig describes the histogram store the aggregates come from.
type StoreConfig struct {
	// Source is one of: file | http.
	Source string `yaml:"source"`

	// Path is the text exposition file read when Source == "file".
	Path string `yaml:"path"`

	// Endpoint is the URL fetched when Source == "http".
	Endpoint string `yaml:"endpoint"`

	// TTL is how long a loaded aggregate stays visible. 0 disables expiry.
	TTL time.Duration `yaml:"ttl"`

	// Auth configures how the agent authenticates to an http store.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for an http store.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header the API key is sent in (Mode == "apikey").
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token variable name (Mode == "bearer").
	TokenEnv string `yaml:"token_env"`

	// Username and PasswordEnv are used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MetricConfig holds the bounds for one metric. Pointer fields distinguish
// "absent" from an explicit zero so per-kind defaults can be applied.
type MetricConfig struct {
	Kind             string   `yaml:"kind"`
	Low              *float64 `yaml:"low"`
	High             *float64 `yaml:"high"`
	MinEntries       *uint64  `yaml:"min_entries"`
	MaxEmptyFraction *float64 `yaml:"max_empty_fraction"`
}

// OccupancyConfig configures occupancy grouping and where its output is published.
type OccupancyConfig struct {
	// HitsPath is a JSON-lines hit file read each cycle. Empty disables
	// occupancy in serve.
	HitsPath string `yaml:"hits_path"`

	// MaxHits is the highest hit count with its own bin; larger counts go
	// to the overflow bin.
	MaxHits int `yaml:"max_hits"`

	// MinAmplitude drops hits whose summed amplitude is below it. 0 keeps all.
	MinAmplitude float64 `yaml:"min_amplitude"`

	// AmplitudeMax is the upper edge of the amplitude spectrum.
	AmplitudeMax float64 `yaml:"amplitude_max"`

	// DistributionName, MapName and AmplitudeName are the store names the
	// results are published under.
	DistributionName string `yaml:"distribution_name"`
	MapName          string `yaml:"map_name"`
	AmplitudeName    string `yaml:"amplitude_name"`
}

// Names returns the store names occupancy publishes under.
func (o OccupancyConfig) Names() []string {
	return []string{o.DistributionName, o.MapName, o.AmplitudeName}
}

// AlertsConfig controls notifications sent when a verdict leaves Good.
type AlertsConfig struct {
	// Cooldown is the minimum time between two notifications for the same
	// metric. An escalation from medium to bad is always sent.
	Cooldown time.Duration `yaml:"cooldown"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = map[string]MetricConfig{DefaultMetric: {}}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := defaults()
	cfg.Metrics = map[string]MetricConfig{DefaultMetric: {}}
	return cfg
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		CycleInterval: DefaultCycleInterval,
		Workers:       DefaultWorkers,
		MetricsAddr:   DefaultMetricsAddr,
		Store: StoreConfig{
			Source: SourceFile,
			TTL:    DefaultStoreTTL,
		},
		Occupancy: OccupancyConfig{
			MaxHits:          DefaultMaxHits,
			AmplitudeMax:     DefaultAmplitudeMax,
			DistributionName: DefaultDistributionName,
			MapName:          DefaultMapName,
			AmplitudeName:    DefaultAmplitudeName,
		},
		Alerts: AlertsConfig{
			Cooldown: DefaultAlertCooldown,
		},
	}
}

// Specs converts the metrics map into check specs sorted by name, filling
// absent bounds with the documented defaults.
func (c *Config) Specs() ([]check.Spec, error) {
	names := make([]string, 0, len(c.Metrics))
	for name := range c.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]check.Spec, 0, len(names))
	for _, name := range names {
		spec, err := c.Metrics[name].spec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (m MetricConfig) spec(name string) (check.Spec, error) {
	kind := DefaultKind
	if m.Kind != "" {
		k, err := check.ParseKind(m.Kind)
		if err != nil {
			return check.Spec{}, fmt.Errorf("metrics %q: %w", name, err)
		}
		kind = k
	}

	s := check.Spec{
		Name:             name,
		Kind:             kind,
		Low:              orFloat(m.Low, DefaultLow),
		High:             orFloat(m.High, DefaultHigh),
		MinEntries:       DefaultMinEntries,
		MaxEmptyFraction: orFloat(m.MaxEmptyFraction, DefaultMaxEmptyFraction),
	}
	if m.MinEntries != nil {
		s.MinEntries = *m.MinEntries
	}
	return s, nil
}

func orFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.Store.TTL < 0 {
		return fmt.Errorf("store.ttl must not be negative")
	}
	switch cfg.Store.Source {
	case SourceFile:
	case SourceHTTP:
		if cfg.Store.Endpoint == "" {
			return fmt.Errorf("store.endpoint is required for source %q", SourceHTTP)
		}
	default:
		return fmt.Errorf("store: unknown source %q", cfg.Store.Source)
	}
	switch cfg.Store.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("store: unknown auth mode %q", cfg.Store.Auth.Mode)
	}

	if cfg.Occupancy.MaxHits <= 0 {
		return fmt.Errorf("occupancy.max_hits must be positive")
	}
	if cfg.Occupancy.MinAmplitude < 0 {
		return fmt.Errorf("occupancy.min_amplitude must not be negative")
	}
	if cfg.Occupancy.AmplitudeMax <= 0 {
		return fmt.Errorf("occupancy.amplitude_max must be positive")
	}
	for _, name := range cfg.Occupancy.Names() {
		if name == "" {
			return fmt.Errorf("occupancy: distribution_name, map_name and amplitude_name must not be empty")
		}
	}

	if cfg.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}
	for i, wh := range cfg.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d]: url_env is required", i)
		}
	}

	specs, err := cfg.Specs()
	if err != nil {
		return err
	}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
