// Package check evaluates one named aggregate against configured bounds.
//
// spec.go defines Spec, the immutable per-metric configuration, and its
// Validate rules (low <= high, fraction in [0,1]).
//
// evaluate.go provides the pure Assess(agg, spec) and Evaluate(agg, spec)
// functions:
//
//	mean_in_range          no entries -> Bad; mean < low -> Bad;
//	                       low <= mean <= high -> Good; mean > high -> Medium
//	min_entries            entries < min -> Bad, else Good
//	empty_bin_fraction     zero bins / bins > max -> Bad, else Good
//	empty_bin_fraction_2d  as above over width*height bins
//
// A nil or wrongly shaped aggregate is always Bad. Nothing here logs; the
// caller decides what to report.
package check
