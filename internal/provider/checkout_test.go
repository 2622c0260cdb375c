package provider

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/paylink/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestBuildCheckoutItems_MapsLineItems(t *testing.T) {
	invoice := &models.Invoice{
		Number:   "INV-0001",
		Currency: "usd",
		Total:    dec(t, "1000.00"),
		LineItems: []models.LineItem{
			{Description: "Consulting", Quantity: 1, UnitPrice: dec(t, "1000.00")},
		},
	}

	items, total, err := BuildCheckoutItems("test", invoice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Consulting", items[0].Description)
	assert.Equal(t, int64(1), items[0].Quantity)
	assert.Equal(t, int64(100000), items[0].UnitAmount)
	assert.Equal(t, int64(100000), total)
}

func TestBuildCheckoutItems_RoundsHalfUp(t *testing.T) {
	invoice := &models.Invoice{
		Number:   "INV-0002",
		Currency: "usd",
		LineItems: []models.LineItem{
			{Description: "Fractional", Quantity: 1, UnitPrice: dec(t, "19.999")},
		},
	}

	items, total, err := BuildCheckoutItems("test", invoice)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), items[0].UnitAmount)
	assert.Equal(t, int64(2000), total)
}

func TestBuildCheckoutItems_DepositReplacesLineItems(t *testing.T) {
	depositAmount := dec(t, "250.00")
	invoice := &models.Invoice{
		Number:          "INV-0003",
		Currency:        "usd",
		Total:           dec(t, "1000.00"),
		RequiresDeposit: true,
		DepositAmount:   &depositAmount,
		DepositType:     models.DepositTypeFixed,
		LineItems: []models.LineItem{
			{Description: "Design", Quantity: 2, UnitPrice: dec(t, "300.00")},
			{Description: "Build", Quantity: 1, UnitPrice: dec(t, "400.00")},
		},
	}

	items, total, err := BuildCheckoutItems("test", invoice)
	require.NoError(t, err)

	// The deposit line replaces the real items entirely; the checkout
	// collects the deposit, not the invoice total.
	require.Len(t, items, 1)
	assert.Equal(t, "Deposit for INV-0003", items[0].Description)
	assert.Equal(t, int64(1), items[0].Quantity)
	assert.Equal(t, int64(25000), items[0].UnitAmount)
	assert.Equal(t, int64(25000), total)
}

func TestBuildCheckoutItems_PercentDeposit(t *testing.T) {
	percent := dec(t, "25")
	invoice := &models.Invoice{
		Number:          "INV-0004",
		Currency:        "usd",
		Total:           dec(t, "1000.00"),
		RequiresDeposit: true,
		DepositAmount:   &percent,
		DepositType:     models.DepositTypePercent,
	}

	items, total, err := BuildCheckoutItems("test", invoice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(25000), items[0].UnitAmount)
	assert.Equal(t, int64(25000), total)
}

func TestBuildCheckoutItems_DropsUnbillableRows(t *testing.T) {
	invoice := &models.Invoice{
		Number:   "INV-0005",
		Currency: "usd",
		LineItems: []models.LineItem{
			{Description: "Zero quantity", Quantity: 0, UnitPrice: dec(t, "10.00")},
			{Description: "Free", Quantity: 1, UnitPrice: dec(t, "0")},
			{Description: "Real", Quantity: 3, UnitPrice: dec(t, "5.00")},
		},
	}

	items, total, err := BuildCheckoutItems("test", invoice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Real", items[0].Description)
	assert.Equal(t, int64(1500), total)
}

func TestBuildCheckoutItems_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		invoice *models.Invoice
	}{
		{
			name: "no currency",
			invoice: &models.Invoice{
				Number:    "INV-0006",
				LineItems: []models.LineItem{{Description: "X", Quantity: 1, UnitPrice: decimal.New(1, 0)}},
			},
		},
		{
			name:    "no line items",
			invoice: &models.Invoice{Number: "INV-0007", Currency: "usd"},
		},
		{
			name: "only unbillable items",
			invoice: &models.Invoice{
				Number:    "INV-0008",
				Currency:  "usd",
				LineItems: []models.LineItem{{Description: "X", Quantity: 0, UnitPrice: decimal.New(1, 0)}},
			},
		},
		{
			name: "deposit flag without amount",
			invoice: &models.Invoice{
				Number:          "INV-0009",
				Currency:        "usd",
				RequiresDeposit: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildCheckoutItems("test", tt.invoice)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation), "expected a validation error, got %v", err)
		})
	}
}

func TestMetadata_CarriesInvoiceContext(t *testing.T) {
	depositAmount := dec(t, "250.00")
	invoice := &models.Invoice{
		ID:              "abc123",
		Number:          "INV-042",
		Total:           dec(t, "1000.00"),
		RequiresDeposit: true,
		DepositAmount:   &depositAmount,
		DepositType:     models.DepositTypeFixed,
	}

	meta := Metadata(invoice)
	assert.Equal(t, "abc123", meta[MetaInvoiceID])
	assert.Equal(t, "INV-042", meta[MetaInvoiceNumber])
	assert.Equal(t, "true", meta[MetaRequiresDeposit])
	assert.Equal(t, "250", meta[MetaDepositAmount])
	assert.Equal(t, models.DepositTypeFixed, meta[MetaDepositType])
}

func TestMetadata_NoDeposit(t *testing.T) {
	invoice := &models.Invoice{ID: "abc123", Number: "INV-0042"}

	meta := Metadata(invoice)
	assert.Equal(t, "false", meta[MetaRequiresDeposit])
	assert.NotContains(t, meta, MetaDepositAmount)
	assert.NotContains(t, meta, MetaDepositType)
}

func TestRedirectURLs(t *testing.T) {
	assert.Equal(t,
		"https://app.ledgerflow.io/invoices/paid?invoice=abc123",
		SuccessURL("https://app.ledgerflow.io", "abc123"))
	assert.Equal(t,
		"https://app.ledgerflow.io/invoices/abc123",
		CancelURL("https://app.ledgerflow.io", "abc123"))
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")
	tagged := E(KindProvider, "op", base)

	assert.True(t, IsKind(tagged, KindProvider))
	assert.False(t, IsKind(tagged, KindValidation))
	assert.True(t, errors.Is(tagged, base))
	assert.Equal(t, KindProvider, KindOf(tagged))
	assert.Equal(t, Kind(""), KindOf(base))

	wrapped := Errorf(KindConfig, "op", "missing key")
	assert.True(t, IsKind(wrapped, KindConfig))
}
