package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion current envelope schema version
const EnvelopeVersion = 1

// ErrMalformedEnvelope returned when a consumed message cannot be
// decoded into a valid envelope.
var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope carries one saga event on the wire. Payload stays raw until
// a consumer that knows the event type decodes it, so unknown payload
// fields never break delivery.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	Version       int             `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for the given event, marshalling the
// payload and stamping a fresh event ID.
func NewEnvelope(eventType, aggregateType, aggregateID, producer, traceID string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", eventType, err)
	}

	return &Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		Version:       EnvelopeVersion,
		Payload:       raw,
	}, nil
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses raw bytes into an envelope. Missing required metadata
// makes the message malformed rather than silently processable.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// DecodePayload unmarshals the raw payload into the given struct.
func (e *Envelope) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: payload of %s: %v", ErrMalformedEnvelope, e.EventType, err)
	}
	return nil
}

func (e *Envelope) validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: missing event_id", ErrMalformedEnvelope)
	case e.EventType == "":
		return fmt.Errorf("%w: missing event_type", ErrMalformedEnvelope)
	case e.AggregateType == "":
		return fmt.Errorf("%w: missing aggregate_type", ErrMalformedEnvelope)
	case e.AggregateID == "":
		return fmt.Errorf("%w: missing aggregate_id", ErrMalformedEnvelope)
	case e.OccurredAt.IsZero():
		return fmt.Errorf("%w: missing occurred_at", ErrMalformedEnvelope)
	case e.Version <= 0:
		return fmt.Errorf("%w: invalid version %d", ErrMalformedEnvelope, e.Version)
	}
	return nil
}
