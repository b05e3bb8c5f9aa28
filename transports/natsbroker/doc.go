// Package natsbroker implements the messaging.Transport contract over a
// NATS server using nats.go, with durable streams provisioned through
// JetStream. Reconnection policy lives entirely in the nats.go client; the
// transport observes it and reports Connected/Degraded/Disconnected state.
package natsbroker
