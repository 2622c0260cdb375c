package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerflow/paylink/internal/money"
)

// Invoice represents an amount owed by a customer to a workspace
type Invoice struct {
	ID              string           `json:"id"`
	Number          string           `json:"number"` // human-readable, e.g. INV-0042
	WorkspaceID     string           `json:"workspace_id"`
	CustomerID      string           `json:"customer_id"`
	CustomerEmail   string           `json:"customer_email"`
	Currency        string           `json:"currency"` // lowercase ISO 4217, fixed at creation
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Total           decimal.Decimal  `json:"total"`
	Status          string           `json:"status"` // DRAFT, SENT, OVERDUE, PAID
	RequiresDeposit bool             `json:"requires_deposit"`
	DepositAmount   *decimal.Decimal `json:"deposit_amount,omitempty"` // fixed amount or percent, per DepositType
	DepositType     string           `json:"deposit_type,omitempty"`   // FIXED, PERCENT
	PaymentLinkURL  string           `json:"payment_link_url,omitempty"`
	LineItems       []LineItem       `json:"line_items,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// LineItem is a single billable row on an invoice
type LineItem struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Position    int             `json:"position"` // preserves display order
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Amount returns quantity x unit price for this item
func (li LineItem) Amount() decimal.Decimal {
	return money.ItemAmount(li.Quantity, li.UnitPrice)
}

// Invoice status constants
const (
	InvoiceStatusDraft   = "DRAFT"
	InvoiceStatusSent    = "SENT"
	InvoiceStatusOverdue = "OVERDUE"
	InvoiceStatusPaid    = "PAID"
)

// Deposit type constants
const (
	DepositTypeFixed   = "FIXED"
	DepositTypePercent = "PERCENT"
)

// DepositDue resolves the deposit terms to a concrete amount: the
// stored amount for FIXED terms, a percentage of the invoice total for
// PERCENT terms. Zero when the invoice collects no deposit.
func (inv *Invoice) DepositDue() decimal.Decimal {
	if !inv.RequiresDeposit || inv.DepositAmount == nil {
		return decimal.Zero
	}
	if inv.DepositType == DepositTypePercent {
		return money.PercentOf(inv.Total, *inv.DepositAmount)
	}
	return *inv.DepositAmount
}
