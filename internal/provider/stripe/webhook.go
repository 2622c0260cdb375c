package stripe

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
)

// SignatureHeader carries the Stripe webhook signature
const SignatureHeader = "Stripe-Signature"

// Verifier authenticates Stripe webhook deliveries. Verification runs
// over the exact raw bytes; the payload is parsed only after the
// signature passes.
type Verifier struct {
	secret string
	logger *zap.Logger
}

// NewVerifier creates a webhook verifier for the signing secret
func NewVerifier(secret string, logger *zap.Logger) *Verifier {
	return &Verifier{secret: secret, logger: logger}
}

// Name identifies the provider
func (v *Verifier) Name() string {
	return models.ProviderStripe
}

// VerifyWebhook checks the Stripe-Signature header against the raw
// body and maps the event into the normalized vocabulary. A missing
// header or unconfigured secret is an authentication failure; the
// event is never trusted by default.
func (v *Verifier) VerifyWebhook(body []byte, header http.Header) (*provider.Event, error) {
	const op = "stripe.VerifyWebhook"

	if v.secret == "" {
		return nil, provider.Errorf(provider.KindAuth, op, "stripe webhook secret is not configured")
	}
	sig := strings.TrimSpace(header.Get(SignatureHeader))
	if sig == "" {
		return nil, provider.Errorf(provider.KindAuth, op, "missing %s header", SignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(body, sig, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, provider.E(provider.KindAuth, op, err)
	}

	return v.mapEvent(&event, body)
}

// checkoutSession and paymentIntent are lean local views of the event
// payloads; in webhook deliveries expandable fields arrive as plain
// id strings.
type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type paymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

func (v *Verifier) mapEvent(event *stripe.Event, body []byte) (*provider.Event, error) {
	const op = "stripe.VerifyWebhook"

	out := &provider.Event{
		Provider: models.ProviderStripe,
		EventID:  event.ID,
		Type:     string(event.Type),
		Raw:      body,
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, provider.Errorf(provider.KindProvider, op, "decode checkout session: %v", err)
		}
		out.ProviderKey = session.ID
		out.IntentKey = session.PaymentIntent
		out.AmountMinor = session.AmountTotal
		out.Currency = session.Currency
		out.ApplyMetadata(session.Metadata)
		if event.Type == "checkout.session.completed" {
			out.Kind = provider.EventCheckoutCompleted
		} else {
			out.Kind = provider.EventCheckoutExpired
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent paymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, provider.Errorf(provider.KindProvider, op, "decode payment intent: %v", err)
		}
		out.IntentKey = intent.ID
		out.AmountMinor = intent.Amount
		out.Currency = intent.Currency
		out.ApplyMetadata(intent.Metadata)
		if event.Type == "payment_intent.succeeded" {
			out.Kind = provider.EventPaymentSucceeded
		} else {
			out.Kind = provider.EventPaymentFailed
		}

	default:
		out.Kind = provider.EventIgnored
	}

	return out, nil
}
