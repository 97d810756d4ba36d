// Package types defines the values shared by every detqc package: the
// three-level Quality verdict and the read-only Aggregate contract that the
// histogram store exposes to the evaluators.
package types
