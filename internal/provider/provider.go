// Package provider defines the contract between the invoice workflow
// and the hosted-checkout providers (Stripe, Square): link generation,
// webhook verification, the normalized event vocabulary, and the
// tagged error taxonomy shared by both implementations.
package provider

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ledgerflow/paylink/internal/models"
)

// Metadata keys attached to every checkout object so the webhook can
// recover application context without a database round trip. The
// values are string-valued on the provider side.
const (
	MetaInvoiceID       = "invoiceId"
	MetaInvoiceNumber   = "invoiceNumber"
	MetaRequiresDeposit = "requiresDeposit"
	MetaDepositAmount   = "depositAmount"
	MetaDepositType     = "depositType"
)

// LinkResult is a successfully created hosted-checkout link
type LinkResult struct {
	URL         string // provider-hosted checkout page
	ProviderKey string // checkout session / payment link id
	AmountMinor int64  // what the checkout will collect, in minor units
	Currency    string
}

// LinkGenerator creates a hosted checkout link for an invoice. It
// never persists anything: the caller stores the URL and advances the
// invoice status.
type LinkGenerator interface {
	// Name identifies the provider (models.ProviderStripe / ProviderSquare)
	Name() string

	// CreateLink builds a checkout for the invoice's line items, or for
	// a single synthetic deposit item when the invoice collects a
	// deposit. Errors carry a Kind (config, validation, provider).
	CreateLink(ctx context.Context, invoice *models.Invoice) (*LinkResult, error)
}

// WebhookVerifier authenticates a raw webhook delivery and, only after
// the signature checks out, parses it into a normalized Event. body
// must be the exact bytes received on the wire: signature schemes are
// byte-exact, so any re-serialization before verification breaks them.
type WebhookVerifier interface {
	// Name identifies the provider
	Name() string

	// VerifyWebhook returns a KindAuth error on a missing or invalid
	// signature (or an unconfigured secret) and never inspects the
	// payload before the signature passes. Verified events of types the
	// workflow does not handle come back as EventIgnored, not an error.
	VerifyWebhook(body []byte, header http.Header) (*Event, error)
}

// EventKind is the normalized webhook event vocabulary the
// reconciliation engine dispatches on
type EventKind string

const (
	// EventCheckoutCompleted settles the checkout's invoice
	EventCheckoutCompleted EventKind = "checkout_completed"
	// EventCheckoutExpired is logged only, reserved for reminder logic
	EventCheckoutExpired EventKind = "checkout_expired"
	// EventPaymentPending records an attempt that has not settled yet
	EventPaymentPending EventKind = "payment_pending"
	// EventPaymentSucceeded settles a previously recorded attempt
	EventPaymentSucceeded EventKind = "payment_succeeded"
	// EventPaymentFailed marks recorded attempts as failed
	EventPaymentFailed EventKind = "payment_failed"
	// EventIgnored is a verified event of a type the workflow ignores
	EventIgnored EventKind = "ignored"
)

// Event is a verified, normalized webhook event
type Event struct {
	Kind     EventKind
	Provider string // models.ProviderStripe / ProviderSquare
	EventID  string // provider's delivery id, for the audit log
	Type     string // provider's raw event type string

	// Application context recovered from checkout metadata. Empty for
	// intent-scoped events that carry no metadata.
	InvoiceID     string
	InvoiceNumber string

	ProviderKey string // checkout session / payment link id
	IntentKey   string // payment-intent id, when the provider reports one

	AmountMinor int64
	Currency    string

	RequiresDeposit bool

	Raw []byte // exact payload as delivered, stored for audit
}

// ApplyMetadata copies checkout metadata written at link-creation time
// back onto the event. Providers store all values as strings.
func (e *Event) ApplyMetadata(meta map[string]string) {
	if meta == nil {
		return
	}
	if v := meta[MetaInvoiceID]; v != "" {
		e.InvoiceID = v
	}
	if v := meta[MetaInvoiceNumber]; v != "" {
		e.InvoiceNumber = v
	}
	if raw, ok := meta[MetaRequiresDeposit]; ok {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			e.RequiresDeposit = parsed
		}
	}
}
