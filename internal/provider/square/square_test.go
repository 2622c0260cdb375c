package square

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testInvoice(t *testing.T) *models.Invoice {
	t.Helper()
	return &models.Invoice{
		ID:       "abc123",
		Number:   "INV-0042",
		Currency: "usd",
		Total:    dec(t, "1000.00"),
		LineItems: []models.LineItem{
			{Description: "Consulting", Quantity: 1, UnitPrice: dec(t, "1000.00")},
		},
	}
}

func testGenerator(t *testing.T, handler http.Handler) (*Generator, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g := NewGenerator(Config{
		AccessToken: "sq_test_token",
		LocationID:  "L123",
		AppBaseURL:  "http://localhost:3000",
		BaseURL:     server.URL,
	}, zap.NewNop())
	return g, server
}

func TestCreateLink_BuildsPaymentLink(t *testing.T) {
	var captured createPaymentLinkRequest

	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/online-checkout/payment-links", r.URL.Path)
		assert.Equal(t, "Bearer sq_test_token", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(createPaymentLinkResponse{
			PaymentLink: PaymentLink{
				ID:      "plink_1",
				URL:     "https://square.link/u/test",
				OrderID: "order_1",
			},
		})
	}))

	result, err := g.CreateLink(context.Background(), testInvoice(t))
	require.NoError(t, err)

	assert.Equal(t, "https://square.link/u/test", result.URL)
	assert.Equal(t, "order_1", result.ProviderKey)
	assert.Equal(t, int64(100000), result.AmountMinor)
	assert.Equal(t, "usd", result.Currency)

	assert.NotEmpty(t, captured.IdempotencyKey)
	assert.Equal(t, "L123", captured.Order.LocationID)
	require.Len(t, captured.Order.LineItems, 1)
	assert.Equal(t, "Consulting", captured.Order.LineItems[0].Name)
	assert.Equal(t, "1", captured.Order.LineItems[0].Quantity)
	assert.Equal(t, int64(100000), captured.Order.LineItems[0].BasePriceMoney.Amount)
	assert.Equal(t, "USD", captured.Order.LineItems[0].BasePriceMoney.Currency)
	assert.Equal(t, "abc123", captured.Order.Metadata[provider.MetaInvoiceID])
	assert.Equal(t, "INV-0042", captured.Order.Metadata[provider.MetaInvoiceNumber])
	require.NotNil(t, captured.CheckoutOptions)
	assert.Equal(t, "http://localhost:3000/invoices/paid?invoice=abc123", captured.CheckoutOptions.RedirectURL)
}

func TestCreateLink_DepositCollapsesToSingleLine(t *testing.T) {
	var captured createPaymentLinkRequest

	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(createPaymentLinkResponse{
			PaymentLink: PaymentLink{URL: "https://square.link/u/dep", OrderID: "order_2"},
		})
	}))

	depositAmount := dec(t, "250.00")
	invoice := testInvoice(t)
	invoice.RequiresDeposit = true
	invoice.DepositAmount = &depositAmount
	invoice.DepositType = models.DepositTypeFixed

	result, err := g.CreateLink(context.Background(), invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), result.AmountMinor)

	require.Len(t, captured.Order.LineItems, 1)
	assert.Equal(t, "Deposit for INV-0042", captured.Order.LineItems[0].Name)
	assert.Equal(t, int64(25000), captured.Order.LineItems[0].BasePriceMoney.Amount)
}

func TestCreateLink_RejectsNonUSD(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("the API must not be called for a non-USD invoice")
	}))

	invoice := testInvoice(t)
	invoice.Currency = "eur"

	_, err := g.CreateLink(context.Background(), invoice)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindValidation))
}

func TestCreateLink_UnconfiguredTokenIsConfigError(t *testing.T) {
	g := NewGenerator(Config{AppBaseURL: "http://localhost:3000"}, zap.NewNop())

	_, err := g.CreateLink(context.Background(), testInvoice(t))
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindConfig))
}

func TestCreateLink_APIErrorIsProviderError(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors": [{"category": "AUTHENTICATION_ERROR", "code": "UNAUTHORIZED"}]}`))
	}))

	_, err := g.CreateLink(context.Background(), testInvoice(t))
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindProvider))
}

func TestCreateLink_ErrorBodyIsProviderError(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createPaymentLinkResponse{
			Errors: []squareError{{Category: "INVALID_REQUEST_ERROR", Code: "BAD_REQUEST", Detail: "location mismatch"}},
		})
	}))

	_, err := g.CreateLink(context.Background(), testInvoice(t))
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindProvider))
	assert.Contains(t, err.Error(), "location mismatch")
}

func TestCreateLink_MissingURLIsProviderError(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createPaymentLinkResponse{
			PaymentLink: PaymentLink{ID: "plink_1", OrderID: "order_1"},
		})
	}))

	_, err := g.CreateLink(context.Background(), testInvoice(t))
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindProvider))
}

func TestEnrichEvent_RecoversOrderMetadata(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/orders/order_1", r.URL.Path)
		json.NewEncoder(w).Encode(retrieveOrderResponse{
			Order: Order{
				ID: "order_1",
				Metadata: map[string]string{
					provider.MetaInvoiceID:       "abc123",
					provider.MetaInvoiceNumber:   "INV-0042",
					provider.MetaRequiresDeposit: "true",
				},
			},
		})
	}))

	event := &provider.Event{
		Kind:        provider.EventPaymentSucceeded,
		Provider:    models.ProviderSquare,
		ProviderKey: "order_1",
	}
	require.NoError(t, g.EnrichEvent(context.Background(), event))

	assert.Equal(t, "abc123", event.InvoiceID)
	assert.Equal(t, "INV-0042", event.InvoiceNumber)
	assert.True(t, event.RequiresDeposit)
}

func TestEnrichEvent_OrderNotFoundIsTolerated(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	event := &provider.Event{
		Kind:        provider.EventPaymentSucceeded,
		Provider:    models.ProviderSquare,
		ProviderKey: "order_missing",
	}
	require.NoError(t, g.EnrichEvent(context.Background(), event))
	assert.Empty(t, event.InvoiceID)
}

func TestEnrichEvent_SkipsWhenContextAlreadyKnown(t *testing.T) {
	g, _ := testGenerator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no lookup should happen when the invoice id is already set")
	}))

	event := &provider.Event{
		Kind:        provider.EventPaymentSucceeded,
		Provider:    models.ProviderSquare,
		ProviderKey: "order_1",
		InvoiceID:   "abc123",
	}
	require.NoError(t, g.EnrichEvent(context.Background(), event))
}
