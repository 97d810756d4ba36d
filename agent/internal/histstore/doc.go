// Package histstore is the histogram-store side of detqc.
//
// hist.go provides Hist1D and Hist2D, plain in-memory implementations of
// types.Aggregate and types.Aggregate2D.
//
// store.go provides Store, a thread-safe name -> Aggregate map with TTL
// expiry. Lookup hides stale entries so an evaluator sees a missing input
// rather than last cycle's data.
//
// exposition.go converts between Prometheus text exposition histograms and
// Aggregates: ParseExposition / Fetch on the way in, ToFamily /
// WriteExposition on the way out. NewSource picks a file or HTTP source from
// config.StoreConfig.
package histstore
