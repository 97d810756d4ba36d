// Package config loads and watches the detqc configuration file (config.yaml).
//
// Top-level types:
//   - Config: cycle_interval, workers, metrics_addr, store, metrics, occupancy
//   - StoreConfig: source (file|http), path, endpoint, ttl, auth, tls
//   - MetricConfig: kind plus optional low/high/min_entries/max_empty_fraction
//   - OccupancyConfig: hits_path, max_hits, min_amplitude, amplitude_max,
//     publication names
//   - AlertsConfig: cooldown and webhook targets (URLs read from env)
//
// Load(path) reads the YAML file, applies defaults (30s cycle, 4 workers,
// metrics_addr :9464, file source, 5m store TTL, low 1e4 / high 5e4,
// min_entries 1, max_empty_fraction 0.1, max_hits 64, amplitude_max 1024,
// names mcmOccupancy / mcmOccupancyMap / mcmAmplitude, 15m alert cooldown),
// then validates. Bounds that violate their invariants (low > high) fail
// here, before any cycle runs. A missing metrics section evaluates the
// single default metric nTrackletsTF.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. A reload that fails validation is
// logged and the previous config stays active.
package config
