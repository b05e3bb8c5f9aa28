// Package interceptors provides a middleware chain for inbound envelope
// handling. The subscriber and reply service run every delivery through a
// chain; Recovery is always installed so a panicking handler surfaces as an
// error instead of crashing the process.
package interceptors
