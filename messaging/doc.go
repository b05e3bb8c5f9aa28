// Package messaging implements the interaction patterns of the kiosk bus on
// top of a broker Transport:
//
//   - EnvelopePublisher: fire-and-forget publishing with optional retry and
//     circuit breaking
//   - EnvelopeSubscriber: pattern subscriptions with per-message decode
//     isolation and an interceptor chain
//   - Requester: blocking request/reply with transport-level correlation
//     and timeout
//   - ReplyService: reply handler registration with synthesized error
//     responses on handler failure
//
// Delivery model: the Transport contract serializes deliveries within one
// subscription in arrival order; deliveries to different subscriptions run
// concurrently. A Requester call suspends only its own goroutine, so
// subscriptions keep being serviced while requests are in flight.
package messaging
