package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/pkg/database"
)

type fakeGenerator struct {
	name       string
	createFunc func(ctx context.Context, invoice *models.Invoice) (*provider.LinkResult, error)
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) CreateLink(ctx context.Context, invoice *models.Invoice) (*provider.LinkResult, error) {
	if f.createFunc != nil {
		return f.createFunc(ctx, invoice)
	}
	return &provider.LinkResult{
		URL:         "https://checkout.test/" + invoice.ID,
		ProviderKey: "cs_" + invoice.ID,
		AmountMinor: 100000,
		Currency:    invoice.Currency,
	}, nil
}

type serviceFixture struct {
	svc         *InvoiceService
	db          *database.DB
	invoiceRepo *repository.InvoiceRepository
	paymentRepo *repository.PaymentRepository
	generator   *fakeGenerator
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
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
	generator := &fakeGenerator{name: models.ProviderStripe}

	svc := NewInvoiceService(db, invoiceRepo, paymentRepo,
		map[string]provider.LinkGenerator{models.ProviderStripe: generator},
		models.ProviderStripe, logger)

	return &serviceFixture{
		svc:         svc,
		db:          db,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		generator:   generator,
	}
}

func validInput() *CreateInvoiceInput {
	return &CreateInvoiceInput{
		Number:        "INV-0042",
		WorkspaceID:   "ws_1",
		CustomerID:    "cus_1",
		CustomerEmail: "customer@example.com",
		Currency:      "USD",
		LineItems: []LineItemInput{
			{Description: "Design", Quantity: 2, UnitPrice: decimal.NewFromInt(300)},
			{Description: "Build", Quantity: 1, UnitPrice: decimal.NewFromInt(400)},
		},
	}
}

func TestCreate_ComputesTotals(t *testing.T) {
	f := newServiceFixture(t)

	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, invoice.ID)
	assert.Equal(t, models.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "usd", invoice.Currency)
	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(1000)))

	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.LineItems, 2)
	assert.Equal(t, "Design", stored.LineItems[0].Description)
	assert.Equal(t, "Build", stored.LineItems[1].Description)
}

func TestCreate_Validation(t *testing.T) {
	f := newServiceFixture(t)
	deposit := decimal.NewFromInt(250)

	tests := []struct {
		name   string
		mutate func(*CreateInvoiceInput)
	}{
		{"no line items", func(in *CreateInvoiceInput) { in.LineItems = nil }},
		{"bad currency", func(in *CreateInvoiceInput) { in.Currency = "dollars" }},
		{"malformed email", func(in *CreateInvoiceInput) { in.CustomerEmail = "not-an-email" }},
		{"zero quantity", func(in *CreateInvoiceInput) { in.LineItems[0].Quantity = 0 }},
		{"negative price", func(in *CreateInvoiceInput) { in.LineItems[0].UnitPrice = decimal.NewFromInt(-5) }},
		{"deposit without amount", func(in *CreateInvoiceInput) { in.RequiresDeposit = true }},
		{"deposit with bad type", func(in *CreateInvoiceInput) {
			in.RequiresDeposit = true
			in.DepositAmount = &deposit
			in.DepositType = "HALF"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)
			_, err := f.svc.Create(context.Background(), input)
			require.Error(t, err)
			assert.True(t, provider.IsKind(err, provider.KindValidation))
		})
	}
}

func TestSend_TransitionsDraftToSent(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	result, err := f.svc.Send(context.Background(), invoice.ID, "")
	require.NoError(t, err)

	assert.Equal(t, models.InvoiceStatusSent, result.Invoice.Status)
	assert.Equal(t, "https://checkout.test/"+invoice.ID, result.Invoice.PaymentLinkURL)
	assert.Equal(t, "cs_"+invoice.ID, result.PaymentLink.ProviderKey)

	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)
	assert.Equal(t, result.Invoice.PaymentLinkURL, stored.PaymentLinkURL)
}

func TestSend_ResendKeepsStatus(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), invoice.ID, "")
	require.NoError(t, err)

	f.generator.createFunc = func(_ context.Context, inv *models.Invoice) (*provider.LinkResult, error) {
		return &provider.LinkResult{URL: "https://checkout.test/fresh", ProviderKey: "cs_fresh"}, nil
	}

	result, err := f.svc.Send(context.Background(), invoice.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, result.Invoice.Status)
	assert.Equal(t, "https://checkout.test/fresh", result.Invoice.PaymentLinkURL)
}

func TestSend_PaidInvoiceIsRejected(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, f.db.WithTransaction(func(tx *sql.Tx) error {
		return f.invoiceRepo.UpdateStatus(tx, invoice.ID, models.InvoiceStatusPaid)
	}))

	_, err = f.svc.Send(context.Background(), invoice.ID, "")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindValidation))
}

func TestSend_UnknownInvoice(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Send(context.Background(), "ghost", "")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindNotFound))
}

func TestSend_UnknownProvider(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), invoice.ID, "paypal")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindConfig))
}

func TestSend_GeneratorFailureLeavesInvoiceSendable(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.generator.createFunc = func(_ context.Context, _ *models.Invoice) (*provider.LinkResult, error) {
		return nil, provider.Errorf(provider.KindConfig, "stripe.CreateLink", "secret key is not configured")
	}

	_, err = f.svc.Send(context.Background(), invoice.ID, "")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindConfig))

	// The failure must not strand the invoice: it stays DRAFT with no
	// stale link.
	stored, err := f.invoiceRepo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, stored.Status)
	assert.Empty(t, stored.PaymentLinkURL)
}

func TestMarkOverdue(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	// DRAFT cannot become overdue.
	_, err = f.svc.MarkOverdue(context.Background(), invoice.ID)
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindValidation))

	_, err = f.svc.Send(context.Background(), invoice.ID, "")
	require.NoError(t, err)

	updated, err := f.svc.MarkOverdue(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, updated.Status)
}

func TestStatus_HasNoSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	invoice, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), invoice.ID, "")
	require.NoError(t, err)

	view, err := f.svc.Status(context.Background(), invoice.ID)
	require.NoError(t, err)

	assert.Equal(t, invoice.ID, view.InvoiceID)
	assert.Equal(t, models.InvoiceStatusSent, view.Status)
	assert.NotEmpty(t, view.PaymentLinkURL)
	assert.Empty(t, view.Payments)

	// Querying again returns the same state: reads never advance the
	// lifecycle.
	again, err := f.svc.Status(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Status, again.Status)
}

func TestPayments_UnknownInvoice(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Payments(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindNotFound))
}

func TestStatus_UnknownInvoice(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Status(context.Background(), "ghost")
	require.Error(t, err)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, provider.KindNotFound, perr.Kind)
}
