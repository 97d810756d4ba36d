// Package quality folds per-metric verdicts into one cycle verdict.
//
// aggregate.go provides Aggregate, the worst-of-all reduction. It starts at
// Good, and any Bad pins the result at Bad. It is commutative and
// associative, so the order metrics finish in never matters.
//
// evaluator.go provides Evaluator, which looks up every configured metric
// in the histogram store, assesses it with package check (in parallel,
// bounded by the worker count) and folds the verdicts. A metric whose
// aggregate is missing or malformed contributes Bad and is logged; the
// remaining metrics are still evaluated.
//
// decoration.go turns a verdict into the label and colour handed to the
// trending/plotting side. It is built fresh per call and never mutated in place.
package quality
