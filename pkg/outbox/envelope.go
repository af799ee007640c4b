package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the envelope layout written by Emit. Consumers accept
// any version up to it.
const EnvelopeVersion = 1

var (
	ErrEnvelopeVersion = errors.New("unsupported envelope version")
	ErrEnvelopeEventID = errors.New("envelope event id missing")
	ErrEnvelopeTenant  = errors.New("envelope tenant missing")
	ErrEnvelopeData    = errors.New("envelope data missing")
)

// ActorRef is the user whose request produced a ledger event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every ledger event payload in outbox_events and on
// the ledger topic.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	TenantID   uuid.UUID       `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses and validates a stored or published envelope.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, envelope.Validate()
}

// Validate checks the fields every consumer relies on.
func (e PayloadEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("%w: %d", ErrEnvelopeVersion, e.Version)
	}
	if e.EventID == "" {
		return ErrEnvelopeEventID
	}
	if e.TenantID == uuid.Nil {
		return ErrEnvelopeTenant
	}
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEnvelopeData
	}
	return nil
}
