// Package inmem provides an in-process messaging.Transport with broker
// semantics faithful to the NATS transport. It backs the library's own test
// suite and lets consumers unit-test their handlers without a running
// broker.
package inmem
