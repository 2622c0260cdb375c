package square

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
)

// Config holds Square credentials and endpoints
type Config struct {
	AccessToken     string
	LocationID      string
	WebhookSecret   string
	NotificationURL string
	AppBaseURL      string
	BaseURL         string
	Timeout         time.Duration
}

// Generator creates Square payment links for invoices
type Generator struct {
	client *Client
	cfg    Config
	logger *zap.Logger
}

// NewGenerator constructs a Square link generator. A generator built
// without credentials reports KindConfig on use rather than failing
// construction, so a Stripe-only deployment can still boot.
func NewGenerator(cfg Config, logger *zap.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Generator{
		client: NewClient(httpClient, cfg.AccessToken, cfg.LocationID, cfg.BaseURL, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Client exposes the underlying API client for order lookups
func (g *Generator) Client() *Client {
	return g.client
}

// Name implements provider.LinkGenerator
func (g *Generator) Name() string {
	return models.ProviderSquare
}

// CreateLink implements provider.LinkGenerator. Square checkouts are
// restricted to USD; any other invoice currency fails fast with a
// validation error before the API is called.
func (g *Generator) CreateLink(ctx context.Context, invoice *models.Invoice) (*provider.LinkResult, error) {
	const op = "square.CreateLink"

	if !g.client.Configured() {
		return nil, provider.Errorf(provider.KindConfig, op, "square access token or location id is not configured")
	}
	if !strings.EqualFold(invoice.Currency, "usd") {
		return nil, provider.Errorf(provider.KindValidation, op, "square checkout supports USD only, invoice %s is %s", invoice.Number, invoice.Currency)
	}

	items, totalMinor, err := provider.BuildCheckoutItems(op, invoice)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(invoice.Currency)
	lineItems := make([]OrderLineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, OrderLineItem{
			Name:     item.Description,
			Quantity: strconv.FormatInt(item.Quantity, 10),
			BasePriceMoney: Money{
				Amount:   item.UnitAmount,
				Currency: currency,
			},
		})
	}

	order := Order{
		LineItems: lineItems,
		Metadata:  provider.Metadata(invoice),
	}
	options := &CheckoutOptions{
		RedirectURL: provider.SuccessURL(g.cfg.AppBaseURL, invoice.ID),
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	link, err := g.client.CreatePaymentLink(ctx, uuid.New().String(), order, options)
	if err != nil {
		return nil, err
	}
	if link.URL == "" {
		return nil, provider.Errorf(provider.KindProvider, op, "square returned a payment link without a url for invoice %s", invoice.ID)
	}

	g.logger.Info("Created Square payment link",
		zap.String("invoice_id", invoice.ID),
		zap.String("order_id", link.OrderID),
		zap.Int64("amount_minor", totalMinor))

	return &provider.LinkResult{
		URL:         link.URL,
		ProviderKey: link.OrderID,
		AmountMinor: totalMinor,
		Currency:    invoice.Currency,
	}, nil
}
