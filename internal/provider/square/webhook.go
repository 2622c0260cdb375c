package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
)

// SignatureHeader carries the Square webhook signature
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// Verifier authenticates Square webhook deliveries. Square signs
// base64(HMAC-SHA256(secret, notificationURL + rawBody)), so the
// verifier must know the exact URL the subscription points at.
type Verifier struct {
	secret          string
	notificationURL string
	logger          *zap.Logger
}

// NewVerifier creates a webhook verifier for the signature key
func NewVerifier(secret, notificationURL string, logger *zap.Logger) *Verifier {
	return &Verifier{secret: secret, notificationURL: notificationURL, logger: logger}
}

// Name identifies the provider
func (v *Verifier) Name() string {
	return models.ProviderSquare
}

// VerifyWebhook checks the signature over the raw body and maps the
// event into the normalized vocabulary. A missing header or
// unconfigured secret is an authentication failure.
func (v *Verifier) VerifyWebhook(body []byte, header http.Header) (*provider.Event, error) {
	const op = "square.VerifyWebhook"

	if v.secret == "" {
		return nil, provider.Errorf(provider.KindAuth, op, "square webhook signature key is not configured")
	}
	sig := strings.TrimSpace(header.Get(SignatureHeader))
	if sig == "" {
		return nil, provider.Errorf(provider.KindAuth, op, "missing %s header", SignatureHeader)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(v.notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, provider.Errorf(provider.KindAuth, op, "square webhook signature mismatch")
	}

	return v.mapEvent(body)
}

// webhookEnvelope is the outer Square event shape. Payment events nest
// the payment object under data.object.
type webhookEnvelope struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	Data       struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment payment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	AmountMoney Money  `json:"amount_money"`
}

func (v *Verifier) mapEvent(body []byte) (*provider.Event, error) {
	const op = "square.VerifyWebhook"

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, provider.Errorf(provider.KindProvider, op, "decode square event: %v", err)
	}

	out := &provider.Event{
		Provider: models.ProviderSquare,
		EventID:  envelope.EventID,
		Type:     envelope.Type,
		Raw:      body,
	}

	switch envelope.Type {
	case "payment.created", "payment.updated":
		pay := envelope.Data.Object.Payment
		out.ProviderKey = pay.OrderID
		out.IntentKey = pay.ID
		out.AmountMinor = pay.AmountMoney.Amount
		out.Currency = strings.ToLower(pay.AmountMoney.Currency)
		out.Kind = paymentKind(pay.Status)

	default:
		out.Kind = provider.EventIgnored
	}

	return out, nil
}

// paymentKind maps Square payment statuses onto the normalized
// vocabulary. Square reports COMPLETED on capture and APPROVED or
// PENDING while the payment is still in flight.
func paymentKind(status string) provider.EventKind {
	switch status {
	case "COMPLETED":
		return provider.EventPaymentSucceeded
	case "FAILED", "CANCELED":
		return provider.EventPaymentFailed
	default:
		return provider.EventPaymentPending
	}
}

// EnrichEvent recovers invoice context for a payment event that only
// carries an order id. Square payment webhooks do not embed order
// metadata, so the order is fetched once and its metadata applied.
func (g *Generator) EnrichEvent(ctx context.Context, event *provider.Event) error {
	if event.InvoiceID != "" || event.ProviderKey == "" {
		return nil
	}
	if !g.client.Configured() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	order, err := g.client.RetrieveOrder(ctx, event.ProviderKey)
	if err != nil {
		if provider.IsKind(err, provider.KindNotFound) {
			g.logger.Warn("Square order not found while enriching event",
				zap.String("order_id", event.ProviderKey),
				zap.String("event_id", event.EventID))
			return nil
		}
		return err
	}

	event.ApplyMetadata(order.Metadata)
	return nil
}
