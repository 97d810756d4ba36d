// Package compute runs detqc's per-cycle pipeline.
//
// engine.go provides the Engine that, once per cycle, loads aggregates from
// the configured histogram source into the store, groups the cycle's hits
// into an occupancy distribution and publishes it, evaluates every
// configured metric and records the verdicts in telemetry. Engine.Process
// takes the cycle time explicitly so tests are deterministic.
//
// history.go keeps a rolling window of overall verdicts so operators can see
// how often recent cycles were Good, not just the latest one.
//
// Reconfigure swaps in a hot-reloaded config between cycles; a config the
// engine cannot use is rejected and the previous one stays active.
package compute
