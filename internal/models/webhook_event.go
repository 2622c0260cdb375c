package models

import "time"

// WebhookEvent is one verified provider delivery, recorded before
// dispatch. (Provider, ProviderEventID) is unique, so redeliveries are
// visible in the log without being double-counted.
type WebhookEvent struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	SignatureValid  bool       `json:"signature_valid"`
	Payload         string     `json:"payload"` // raw body as delivered
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
}
