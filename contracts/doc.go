// Package contracts defines the message envelope shared by every kiosk
// component and the conventions layered on top of it.
//
// The Envelope is the single wire format for all broker traffic. Its payload
// is an open key/value mapping; by convention it carries an "event" key for
// notifications, a "command" key for requests, or a "status" key for
// responses. The New* constructors produce envelopes following those
// conventions, and the typed payload structs in payloads.go give common
// event and command shapes a concrete form without closing the schema.
//
// Subject helpers and validation for the kiosk.* namespace live in
// subjects.go, and the error kinds surfaced by the messaging client live in
// errors.go.
package contracts
