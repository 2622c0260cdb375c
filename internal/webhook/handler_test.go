package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/notify"
	"github.com/ledgerflow/paylink/internal/provider/stripe"
	"github.com/ledgerflow/paylink/internal/reconcile"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/pkg/database"
)

const testSecret = "whsec_test_secret"

type handlerFixture struct {
	router      *gin.Engine
	db          *database.DB
	invoiceRepo *repository.InvoiceRepository
	paymentRepo *repository.PaymentRepository
	eventRepo   *repository.WebhookEventRepository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations("../../migrations"))

	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)
	eventRepo := repository.NewWebhookEventRepository(db.DB, logger)

	engine := reconcile.NewEngine(db, invoiceRepo, paymentRepo, eventRepo,
		notify.NewNopNotifier(logger), logger)

	registry := NewRegistry()
	registry.Register(stripe.NewVerifier(testSecret, logger), nil)

	handler := NewHandler(registry, engine, logger)

	router := gin.New()
	router.POST("/webhooks/:provider", handler.Handle)

	return &handlerFixture{
		router:      router,
		db:          db,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
	}
}

func (f *handlerFixture) seedInvoice(t *testing.T) *models.Invoice {
	t.Helper()
	invoice := &models.Invoice{
		Number:      "INV-0042",
		WorkspaceID: "ws_1",
		CustomerID:  "cus_1",
		Currency:    "usd",
		Subtotal:    decimal.NewFromInt(1000),
		Total:       decimal.NewFromInt(1000),
		Status:      models.InvoiceStatusSent,
		LineItems: []models.LineItem{
			{Description: "Consulting", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
		},
	}
	require.NoError(t, f.db.WithTransaction(func(tx *sql.Tx) error {
		return f.invoiceRepo.Create(tx, invoice)
	}))
	return invoice
}

func signStripe(body []byte) string {
	now := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", now, body)
	return fmt.Sprintf("t=%d,v1=%s", now, hex.EncodeToString(mac.Sum(nil)))
}

func (f *handlerFixture) deliver(t *testing.T, path string, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set(stripe.SignatureHeader, signStripe(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func stripeCheckoutBody(eventID, invoiceID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"payment_intent": "pi_123",
				"amount_total": 100000,
				"currency": "usd",
				"metadata": {"invoiceId": %q, "invoiceNumber": "INV-0042"}
			}
		}
	}`, eventID, invoiceID))
}

func TestHandle_VerifiedCheckoutSettlesInvoice(t *testing.T) {
	f := newHandlerFixture(t)
	invoice := f.seedInvoice(t)

	rec := f.deliver(t, "/webhooks/stripe", stripeCheckoutBody("evt_1", invoice.ID), true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())

	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)

	payments, err := f.paymentRepo.ListByInvoice(invoice.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSucceeded, payments[0].Status)
}

func TestHandle_MissingSignatureIs400(t *testing.T) {
	f := newHandlerFixture(t)
	invoice := f.seedInvoice(t)

	rec := f.deliver(t, "/webhooks/stripe", stripeCheckoutBody("evt_1", invoice.ID), false)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing moved, and the rejection is on the audit surface.
	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)

	events, err := f.eventRepo.List(10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].SignatureValid)
}

func TestHandle_TamperedBodyIs400(t *testing.T) {
	f := newHandlerFixture(t)
	invoice := f.seedInvoice(t)

	body := stripeCheckoutBody("evt_1", invoice.ID)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(append(body, ' ')))
	req.Header.Set(stripe.SignatureHeader, signStripe(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)
}

func TestHandle_UnknownEventTypeIsAcknowledged(t *testing.T) {
	f := newHandlerFixture(t)

	body := []byte(`{"id": "evt_9", "object": "event", "type": "customer.created", "data": {"object": {}}}`)
	rec := f.deliver(t, "/webhooks/stripe", body, true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())
}

func TestHandle_UnknownInvoiceIsAcknowledged(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.deliver(t, "/webhooks/stripe", stripeCheckoutBody("evt_1", "ghost"), true)

	// The invoice will never exist; a 500 would only cause pointless
	// redelivery.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandle_UnregisteredProviderIs404(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandle_ReplayIsAcknowledgedOnce(t *testing.T) {
	f := newHandlerFixture(t)
	invoice := f.seedInvoice(t)

	body := stripeCheckoutBody("evt_1", invoice.ID)
	first := f.deliver(t, "/webhooks/stripe", body, true)
	second := f.deliver(t, "/webhooks/stripe", body, true)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)

	payments, err := f.paymentRepo.ListByInvoice(invoice.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	events, err := f.eventRepo.List(10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
