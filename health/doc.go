// Package health reports the liveness of kiosk messaging dependencies.
// A Registry aggregates Checkers into one overall status suitable for a
// readiness endpoint; BrokerChecker covers the broker connection.
package health
