package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Paystack webhook event names handled by the reconciler
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// WebhookOutcome is how a delivered webhook was resolved.
type WebhookOutcome string

const (
	OutcomeProcessed        WebhookOutcome = "processed"
	OutcomeIgnored          WebhookOutcome = "ignored"
	OutcomeAlreadyProcessed WebhookOutcome = "already_processed"
)

// PaystackEvent is the webhook envelope.
type PaystackEvent struct {
	Event string            `json:"event"`
	Data  PaystackEventData `json:"data"`
}

type PaystackEventData struct {
	ID              int64            `json:"id"`
	Reference       string           `json:"reference"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	GatewayResponse string           `json:"gateway_response"`
	Customer        PaystackCustomer `json:"customer"`
	Metadata        json.RawMessage  `json:"metadata,omitempty"`
}

type PaystackCustomer struct {
	Email string `json:"email"`
}

// PaymentEvent is one authenticated webhook delivery kept for audit.
type PaymentEvent struct {
	ID        int64          `json:"id" db:"id"`
	Reference string         `json:"reference" db:"reference"`
	Event     string         `json:"event" db:"event"`
	Outcome   WebhookOutcome `json:"outcome" db:"outcome"`
	Payload   RawPayload     `json:"payload" db:"payload"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// RawPayload holds a JSON document scanned from a JSONB column.
type RawPayload []byte

func (p *RawPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(RawPayload(nil), v...)
	case string:
		*p = RawPayload(v)
	default:
		return fmt.Errorf("unsupported payload column type %T", src)
	}
	return nil
}

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}
