package contracts

import (
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// SchemaVersion is the envelope format version written by this library.
const SchemaVersion = "1.0"

// supportedMajor is the envelope major version this library decodes.
const supportedMajor = 1

// Envelope is the standard message wrapper for all kiosk broker traffic.
// Envelopes are immutable after construction: build a new one instead of
// modifying an existing one.
type Envelope struct {
	MsgID     string         `json:"msg_id"`
	Timestamp string         `json:"timestamp"`
	SessionID string         `json:"session_id"`
	TraceID   string         `json:"trace_id"`
	Version   string         `json:"version"`
	Payload   map[string]any `json:"payload"`
}

// EnvelopeOption configures envelope construction.
type EnvelopeOption func(*Envelope)

// WithTraceID carries an existing trace ID into a new envelope instead of
// generating a fresh one.
func WithTraceID(traceID string) EnvelopeOption {
	return func(e *Envelope) {
		if traceID != "" {
			e.TraceID = traceID
		}
	}
}

// New creates an envelope with a fresh message ID, a UTC timestamp, and a
// fresh trace ID unless WithTraceID is given. The payload map is copied, so
// the caller's map is never shared or mutated.
func New(payload map[string]any, sessionID string, opts ...EnvelopeOption) *Envelope {
	e := &Envelope{
		MsgID:     uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		TraceID:   uuid.New().String(),
		Version:   SchemaVersion,
		Payload:   copyPayload(payload),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewEvent creates a notification envelope, merging {"event": eventType}
// into the payload.
func NewEvent(eventType string, payload map[string]any, sessionID string) *Envelope {
	merged := copyPayload(payload)
	merged["event"] = eventType
	return New(merged, sessionID)
}

// NewRequest creates a request envelope, merging {"command": command} into
// the payload.
func NewRequest(command string, payload map[string]any, sessionID string) *Envelope {
	merged := copyPayload(payload)
	merged["command"] = command
	return New(merged, sessionID)
}

// NewResponse creates a response envelope, merging {"status": status} into
// the payload and carrying the session and trace IDs of the request it
// answers.
func NewResponse(status string, payload map[string]any, original *Envelope) *Envelope {
	merged := copyPayload(payload)
	merged["status"] = status
	return New(merged, original.SessionID, WithTraceID(original.TraceID))
}

// NewErrorResponse creates an error response for a failed request, carrying
// a machine-readable code and a human-readable message.
func NewErrorResponse(original *Envelope, code, message string) *Envelope {
	return NewResponse("error", map[string]any{
		"error_code":    code,
		"error_message": message,
	}, original)
}

// Encode serializes the envelope to UTF-8 JSON. Every field is always
// present on the wire, including empty session IDs and payload maps.
// Output is deterministic: map keys are emitted in sorted order.
func (e *Envelope) Encode() ([]byte, error) {
	out := *e
	if out.Payload == nil {
		out.Payload = map[string]any{}
	}
	return json.Marshal(&out)
}

// Decode reconstructs an envelope from wire bytes. It fails with a
// *DecodeError if the bytes are not valid JSON, if msg_id, timestamp,
// trace_id, version, or payload is missing, or if the version's major is not
// compatible with this library. Unknown top-level fields are ignored.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	switch {
	case e.MsgID == "":
		return nil, &DecodeError{Reason: "missing msg_id"}
	case e.Timestamp == "":
		return nil, &DecodeError{Reason: "missing timestamp"}
	case e.TraceID == "":
		return nil, &DecodeError{Reason: "missing trace_id"}
	case e.Version == "":
		return nil, &DecodeError{Reason: "missing version"}
	case e.Payload == nil:
		return nil, &DecodeError{Reason: "missing payload"}
	}
	if err := checkVersion(e.Version); err != nil {
		return nil, err
	}
	return &e, nil
}

// checkVersion accepts any version sharing the supported major.
func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return &DecodeError{Reason: "unparseable version " + version, Err: err}
	}
	if v.Major() != supportedMajor {
		return &DecodeError{Reason: "unsupported version " + version}
	}
	return nil
}

// Event returns the payload "event" key, or "" if absent or not a string.
func (e *Envelope) Event() string { return e.payloadString("event") }

// Command returns the payload "command" key, or "" if absent or not a string.
func (e *Envelope) Command() string { return e.payloadString("command") }

// Status returns the payload "status" key, or "" if absent or not a string.
func (e *Envelope) Status() string { return e.payloadString("status") }

func (e *Envelope) payloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

func copyPayload(payload map[string]any) map[string]any {
	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}
