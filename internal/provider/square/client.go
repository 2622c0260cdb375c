// Package square implements payment-link generation and webhook
// verification against the Square Online Checkout API. Square ships no
// Go SDK here, so the client is a small hand-rolled HTTP layer with
// bounded timeouts.
package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/provider"
)

const defaultBaseURL = "https://connect.squareup.com"

// Client is a minimal Square API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	locationID string
	logger     *zap.Logger
}

// NewClient constructs a Square client. baseURL is overridable for the
// sandbox environment and tests.
func NewClient(httpClient *http.Client, token, locationID, baseURL string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		locationID: locationID,
		logger:     logger,
	}
}

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c.token != "" && c.locationID != ""
}

// Money is Square's integer minor-unit amount
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// OrderLineItem is one checkout line. Square quantities are strings.
type OrderLineItem struct {
	Name           string `json:"name"`
	Quantity       string `json:"quantity"`
	BasePriceMoney Money  `json:"base_price_money"`
}

// Order is the order embedded in a payment link
type Order struct {
	ID         string            `json:"id,omitempty"`
	LocationID string            `json:"location_id"`
	LineItems  []OrderLineItem   `json:"line_items,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CheckoutOptions controls the hosted checkout page
type CheckoutOptions struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type createPaymentLinkRequest struct {
	IdempotencyKey  string           `json:"idempotency_key"`
	Order           Order            `json:"order"`
	CheckoutOptions *CheckoutOptions `json:"checkout_options,omitempty"`
}

// PaymentLink is Square's created link object
type PaymentLink struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

type createPaymentLinkResponse struct {
	PaymentLink PaymentLink   `json:"payment_link"`
	Errors      []squareError `json:"errors,omitempty"`
}

type retrieveOrderResponse struct {
	Order  Order         `json:"order"`
	Errors []squareError `json:"errors,omitempty"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// CreatePaymentLink creates a hosted checkout link for the order
func (c *Client) CreatePaymentLink(ctx context.Context, idempotencyKey string, order Order, options *CheckoutOptions) (*PaymentLink, error) {
	const op = "square.CreatePaymentLink"

	order.LocationID = c.locationID
	reqBody := createPaymentLinkRequest{
		IdempotencyKey:  idempotencyKey,
		Order:           order,
		CheckoutOptions: options,
	}

	var resp createPaymentLinkResponse
	if err := c.do(ctx, op, http.MethodPost, "/v2/online-checkout/payment-links", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, provider.Errorf(provider.KindProvider, op, "square rejected the request: %s (%s)", resp.Errors[0].Detail, resp.Errors[0].Code)
	}

	return &resp.PaymentLink, nil
}

// RetrieveOrder fetches an order, used to recover checkout metadata
// for webhook events that only carry an order id
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (*Order, error) {
	const op = "square.RetrieveOrder"

	var resp retrieveOrderResponse
	if err := c.do(ctx, op, http.MethodGet, "/v2/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		if resp.Errors[0].Code == "NOT_FOUND" {
			return nil, provider.Errorf(provider.KindNotFound, op, "square order %s not found", orderID)
		}
		return nil, provider.Errorf(provider.KindProvider, op, "square rejected the request: %s (%s)", resp.Errors[0].Detail, resp.Errors[0].Code)
	}

	return &resp.Order, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return provider.E(provider.KindProvider, op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return provider.E(provider.KindProvider, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.E(provider.KindProvider, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return provider.Errorf(provider.KindNotFound, op, "square: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Square API error",
			zap.String("path", path),
			zap.String("status", resp.Status),
			zap.ByteString("body", detail))
		return provider.Errorf(provider.KindProvider, op, "square: unexpected status %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return provider.E(provider.KindProvider, op, fmt.Errorf("decode square response: %w", err))
		}
	}

	return nil
}
