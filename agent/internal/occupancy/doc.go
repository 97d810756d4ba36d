// Package occupancy turns one cycle of decoded hits into a per-unit
// occupancy distribution.
//
// A Scheme maps a hierarchical Address (detector, coarse unit, fine unit,
// channel) to a canonical index that is equal for two hits iff they come from
// the same electronics unit. Layout is the table-driven Scheme: every
// detector has a hardware Variant declaring its coarse units per side, and
// the side is the parity bit of the coarse id.
//
// Compute drops hits with invalid addresses, sorts the canonical indices and
// sweeps equal-index runs, filling one Distribution observation per unit.
// Bin k of the Distribution counts units that saw exactly k hits.
package occupancy
