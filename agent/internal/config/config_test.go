package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/check"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
cycle_interval: 10s
workers: 8
store:
  source: http
  endpoint: "http://qc-repo:8080/metrics"
  ttl: 2m
metrics:
  nTrackletsTF:
    kind: mean_in_range
    low: 20000
    high: 40000
  mcmOccupancyMap:
    kind: empty_bin_fraction_2d
    max_empty_fraction: 0.3
occupancy:
  max_hits: 32
  min_amplitude: 12.5
`
	cfg := loadFromString(t, yaml)

	if cfg.CycleInterval != 10*time.Second {
		t.Errorf("cycle_interval: got %v", cfg.CycleInterval)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers: got %d", cfg.Workers)
	}
	if cfg.Store.Source != SourceHTTP || cfg.Store.Endpoint != "http://qc-repo:8080/metrics" {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if cfg.Store.TTL != 2*time.Minute {
		t.Errorf("store.ttl: got %v", cfg.Store.TTL)
	}
	if cfg.Occupancy.MaxHits != 32 || cfg.Occupancy.MinAmplitude != 12.5 {
		t.Errorf("occupancy: got %+v", cfg.Occupancy)
	}

	specs, err := cfg.Specs()
	if err != nil {
		t.Fatalf("Specs() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("specs: got %d, want 2", len(specs))
	}
	// Sorted by name.
	if specs[0].Name != "mcmOccupancyMap" || specs[1].Name != "nTrackletsTF" {
		t.Errorf("spec order: got %q, %q", specs[0].Name, specs[1].Name)
	}
	if specs[0].Kind != check.KindEmptyBinFraction2D || specs[0].MaxEmptyFraction != 0.3 {
		t.Errorf("map spec: got %+v", specs[0])
	}
	if specs[1].Low != 20000 || specs[1].High != 40000 {
		t.Errorf("tracklet spec: got %+v", specs[1])
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "workers: 2\n")

	if cfg.CycleInterval != DefaultCycleInterval {
		t.Errorf("default cycle_interval: got %v, want %v", cfg.CycleInterval, DefaultCycleInterval)
	}
	if cfg.Store.Source != SourceFile {
		t.Errorf("default store.source: got %q", cfg.Store.Source)
	}
	if cfg.Store.TTL != DefaultStoreTTL {
		t.Errorf("default store.ttl: got %v", cfg.Store.TTL)
	}
	if cfg.Occupancy.MaxHits != DefaultMaxHits {
		t.Errorf("default max_hits: got %d", cfg.Occupancy.MaxHits)
	}
	if cfg.Occupancy.DistributionName != DefaultDistributionName {
		t.Errorf("default distribution_name: got %q", cfg.Occupancy.DistributionName)
	}
	if cfg.Occupancy.AmplitudeName != DefaultAmplitudeName || cfg.Occupancy.AmplitudeMax != DefaultAmplitudeMax {
		t.Errorf("default amplitude spectrum: got %q up to %v", cfg.Occupancy.AmplitudeName, cfg.Occupancy.AmplitudeMax)
	}

	specs, err := cfg.Specs()
	if err != nil {
		t.Fatalf("Specs() error = %v", err)
	}
	if len(specs) != 1 || specs[0].Name != DefaultMetric {
		t.Fatalf("default metrics: got %+v", specs)
	}
	want := check.Spec{
		Name:             DefaultMetric,
		Kind:             check.KindMeanInRange,
		Low:              DefaultLow,
		High:             DefaultHigh,
		MinEntries:       DefaultMinEntries,
		MaxEmptyFraction: DefaultMaxEmptyFraction,
	}
	if specs[0] != want {
		t.Errorf("default spec: got %+v, want %+v", specs[0], want)
	}
}

func TestLoad_PartialBoundsUseDefaults(t *testing.T) {
	yaml := `
metrics:
  nTracklets:
    kind: min_entries
  nTrackletsTF:
    high: 60000
`
	cfg := loadFromString(t, yaml)
	specs, err := cfg.Specs()
	if err != nil {
		t.Fatalf("Specs() error = %v", err)
	}
	if specs[0].MinEntries != DefaultMinEntries {
		t.Errorf("min_entries default: got %d", specs[0].MinEntries)
	}
	if specs[1].Low != DefaultLow || specs[1].High != 60000 {
		t.Errorf("partial bounds: got low=%g high=%g", specs[1].Low, specs[1].High)
	}
}

func TestLoad_ExplicitZeroIsKept(t *testing.T) {
	yaml := `
metrics:
  adc:
    kind: empty_bin_fraction
    max_empty_fraction: 0
`
	cfg := loadFromString(t, yaml)
	specs, _ := cfg.Specs()
	if specs[0].MaxEmptyFraction != 0 {
		t.Errorf("explicit zero overwritten: got %g", specs[0].MaxEmptyFraction)
	}
}

func TestLoad_InvertedBoundsFailFast(t *testing.T) {
	yaml := `
metrics:
  nTrackletsTF:
    low: 50000
    high: 10000
`
	_, err := loadStringErr(t, yaml)
	if err == nil {
		t.Fatal("expected error for low > high, got nil")
	}
	if !errors.Is(err, check.ErrInvalidBounds) {
		t.Errorf("err = %v, want ErrInvalidBounds", err)
	}
}

func TestLoad_InvertedDefaultsAgainstOneBound(t *testing.T) {
	// low omitted defaults to 1e4, which is above the explicit high.
	_, err := loadStringErr(t, "metrics:\n  x:\n    high: 5\n")
	if !errors.Is(err, check.ErrInvalidBounds) {
		t.Errorf("err = %v, want ErrInvalidBounds", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "metrics:\n  x:\n    kind: median\n"},
		{"fraction above one", "metrics:\n  x:\n    kind: empty_bin_fraction\n    max_empty_fraction: 2\n"},
		{"http without endpoint", "store:\n  source: http\n"},
		{"unknown source", "store:\n  source: kafka\n"},
		{"unknown auth mode", "store:\n  auth:\n    mode: magictoken\n"},
		{"negative ttl", "store:\n  ttl: -1s\n"},
		{"zero workers", "workers: 0\n"},
		{"zero cycle", "cycle_interval: 0s\n"},
		{"zero max hits", "occupancy:\n  max_hits: 0\n"},
		{"negative amplitude", "occupancy:\n  min_amplitude: -3\n"},
		{"zero amplitude max", "occupancy:\n  amplitude_max: 0\n"},
		{"empty amplitude name", "occupancy:\n  amplitude_name: \"\"\n"},
		{"negative cooldown", "alerts:\n  cooldown: -1m\n"},
		{"unknown webhook", "alerts:\n  webhooks:\n    - type: pager\n      url_env: X\n"},
		{"webhook without url_env", "alerts:\n  webhooks:\n    - type: slack\n"},
		{"bad yaml", "metrics: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := validate(Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestLoad_Alerts(t *testing.T) {
	cfg := loadFromString(t, `
alerts:
  cooldown: 2m
  webhooks:
    - type: slack
      url_env: DETQC_SLACK_URL
`)
	if cfg.Alerts.Cooldown != 2*time.Minute {
		t.Errorf("alerts.cooldown: got %v", cfg.Alerts.Cooldown)
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].Type != "slack" {
		t.Fatalf("alerts.webhooks: got %+v", cfg.Alerts.Webhooks)
	}

	t.Setenv("DETQC_SLACK_URL", "https://hooks.example/x")
	if got := cfg.Alerts.Webhooks[0].URL(); got != "https://hooks.example/x" {
		t.Errorf("URL(): got %q", got)
	}
	if got := Default().Alerts.Cooldown; got != DefaultAlertCooldown {
		t.Errorf("default cooldown: got %v", got)
	}
}

func TestWatch_ReloadsAfterInvalidWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "workers: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, "metrics:\n  x:\n    low: 9\n    high: 1\n")
	writeFile(t, path, "workers: 6\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Workers == 6 {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Watch returned %v", err)
				}
				return
			}
			// Editors and WriteFile may surface a truncated intermediate
			// state; only the final content matters.
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
