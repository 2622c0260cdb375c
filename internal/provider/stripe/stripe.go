// Package stripe implements payment-link generation and webhook
// verification against the Stripe Checkout API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
)

// Config holds Stripe credentials and redirect settings
type Config struct {
	SecretKey     string        // sk_live_... / sk_test_...
	WebhookSecret string        // whsec_...
	AppBaseURL    string        // public URL redirect targets are built from
	Timeout       time.Duration // cap on outbound API calls
}

// Generator creates Stripe Checkout Sessions for invoices. The API
// client is built once at startup and injected everywhere it is
// needed; there is no package-global key.
type Generator struct {
	api    *client.API
	cfg    Config
	logger *zap.Logger
}

// NewGenerator creates a Stripe link generator. A missing secret key
// does not fail construction: the provider reports itself unavailable
// at call time so the rest of the invoice workflow keeps working.
func NewGenerator(cfg Config, logger *zap.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	g := &Generator{cfg: cfg, logger: logger}
	if cfg.SecretKey != "" {
		g.api = client.New(cfg.SecretKey, nil)
	}
	return g
}

// Name identifies the provider
func (g *Generator) Name() string {
	return models.ProviderStripe
}

// CreateLink builds a payment-mode Checkout Session from the invoice
// and returns its hosted URL. The session carries invoice metadata so
// the webhook can reconcile without a database lookup keyed only by
// opaque Stripe ids.
func (g *Generator) CreateLink(ctx context.Context, invoice *models.Invoice) (*provider.LinkResult, error) {
	const op = "stripe.CreateLink"

	if g.api == nil {
		return nil, provider.Errorf(provider.KindConfig, op, "stripe secret key is not configured")
	}

	items, total, err := provider.BuildCheckoutItems(op, invoice)
	if err != nil {
		return nil, err
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(invoice.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Description),
				},
			},
		})
	}

	meta := provider.Metadata(invoice)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(provider.SuccessURL(g.cfg.AppBaseURL, invoice.ID)),
		CancelURL:  stripe.String(provider.CancelURL(g.cfg.AppBaseURL, invoice.ID)),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	if invoice.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(invoice.CustomerEmail)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	params.Context = ctx

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError(op, err)
	}

	// HTTP success without a hosted URL is still a failure: there is
	// nothing to send the customer.
	if session.URL == "" {
		g.logger.Error("Stripe returned a session without a URL",
			zap.String("invoice_number", invoice.Number),
			zap.String("session_id", session.ID))
		return nil, provider.Errorf(provider.KindProvider, op, "stripe session %s has no checkout URL", session.ID)
	}

	g.logger.Info("Created Stripe checkout session",
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.Number),
		zap.String("session_id", session.ID),
		zap.Int64("amount_minor", total),
		zap.Bool("deposit", invoice.RequiresDeposit))

	return &provider.LinkResult{
		URL:         session.URL,
		ProviderKey: session.ID,
		AmountMinor: total,
		Currency:    invoice.Currency,
	}, nil
}

// wrapStripeError tags Stripe SDK failures with a machine-readable
// kind: missing resources map to KindNotFound, everything else the
// remote API reports is KindProvider.
func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return provider.E(provider.KindNotFound, op, err)
		}
		return provider.E(provider.KindProvider, op, fmt.Errorf("stripe rejected the request (%s): %w", stripeErr.Code, err))
	}
	return provider.E(provider.KindProvider, op, err)
}
