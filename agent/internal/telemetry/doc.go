// Package telemetry exposes detqc's own health as Prometheus metrics: the
// verdict of every configured metric, the overall verdict, cycle latency and
// the fate of every hit handed to the occupancy grouper.
package telemetry
