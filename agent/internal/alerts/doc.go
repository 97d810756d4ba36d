// Package alerts notifies the expert on duty when a metric's verdict leaves
// Good and again when it recovers.
package alerts
