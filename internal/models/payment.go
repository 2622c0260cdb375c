package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one provider-side payment attempt against an invoice.
// The (InvoiceID, ProviderKey) pair is unique: it is the idempotency
// key that collapses redelivered webhook events into a single row.
type Payment struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`   // PENDING, SUCCEEDED, FAILED
	Provider    string          `json:"provider"` // stripe, square
	ProviderKey string          `json:"provider_key"`         // checkout session / payment link id
	IntentKey   string          `json:"intent_key,omitempty"` // payment-intent id, when the provider reports one
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	RawPayload  string          `json:"raw_payload,omitempty"` // last provider payload, kept for audit
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Payment status constants
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
)

// Payment provider identifiers
const (
	ProviderStripe = "stripe"
	ProviderSquare = "square"
)
