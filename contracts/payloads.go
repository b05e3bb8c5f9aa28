package contracts

import "encoding/json"

// Typed payload shapes for the common kiosk events and agent commands.
// These are a convenience layer over the open payload mapping: the envelope
// contract stays schemaless, and components that want structure marshal
// through these instead of assembling maps by hand.

// PersonDetectedPayload is the payload for the vision person_detected event.
type PersonDetectedPayload struct {
	Event              string  `json:"event"`
	Confidence         float64 `json:"confidence"`
	FaceDetected       bool    `json:"face_detected"`
	EstimatedAgeGroup  string  `json:"estimated_age_group"`
	EstimatedPartySize int     `json:"estimated_party_size"`
}

// TranscriptPayload is the payload for the voice transcript event.
type TranscriptPayload struct {
	Event      string  `json:"event"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	IsFinal    bool    `json:"is_final"`
}

// IntentPayload is the payload for the voice intent event.
type IntentPayload struct {
	Event      string         `json:"event"`
	IntentType string         `json:"intent_type"`
	Entities   map[string]any `json:"entities"`
	RawText    string         `json:"raw_text"`
	Confidence float64        `json:"confidence"`
}

// MenuSearchRequest is the payload for the menu agent search command.
type MenuSearchRequest struct {
	Command        string   `json:"command"`
	Query          string   `json:"query"`
	Tags           []string `json:"tags"`
	DietaryFilters []string `json:"dietary_filters"`
	Limit          int      `json:"limit"`
}

// MenuSearchResponse is the payload answering a menu search.
type MenuSearchResponse struct {
	Status       string `json:"status"`
	Items        []any  `json:"items"`
	TotalMatches int    `json:"total_matches"`
}

// RecsysSuggestRequest is the payload for the recsys agent suggest command.
type RecsysSuggestRequest struct {
	Command string         `json:"command"`
	Cart    []any          `json:"cart"`
	Context map[string]any `json:"context"`
}

// RecsysSuggestResponse is the payload answering a suggest command.
type RecsysSuggestResponse struct {
	Status      string `json:"status"`
	Suggestions []any  `json:"suggestions"`
}

// ToPayload converts a typed payload struct into the open mapping an
// Envelope carries, going through JSON so field names follow the wire tags.
func ToPayload(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// PayloadInto unmarshals an envelope's payload into a typed struct.
func PayloadInto(e *Envelope, v any) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
