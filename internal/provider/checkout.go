package provider

import (
	"fmt"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/money"
)

// CheckoutItem is one provider-agnostic checkout line: description,
// quantity and unit price already converted to minor units
type CheckoutItem struct {
	Description string
	Quantity    int64
	UnitAmount  int64 // minor units, rounded half-up
}

// BuildCheckoutItems maps an invoice to the lines a checkout should
// carry. Deposit invoices get exactly one synthetic line ("Deposit for
// {number}") priced at the deposit amount in place of the real items;
// otherwise items map 1:1 with zero-quantity and zero-price rows
// dropped. Returns a KindValidation error when nothing billable
// remains or the resulting total is not positive.
func BuildCheckoutItems(op string, invoice *models.Invoice) ([]CheckoutItem, int64, error) {
	if invoice.Currency == "" {
		return nil, 0, Errorf(KindValidation, op, "invoice %s has no currency", invoice.Number)
	}

	if invoice.RequiresDeposit {
		deposit := invoice.DepositDue()
		if !deposit.IsPositive() {
			return nil, 0, Errorf(KindValidation, op, "invoice %s requires a deposit but resolves to %s", invoice.Number, deposit)
		}
		unit := money.MinorUnits(deposit)
		item := CheckoutItem{
			Description: fmt.Sprintf("Deposit for %s", invoice.Number),
			Quantity:    1,
			UnitAmount:  unit,
		}
		return []CheckoutItem{item}, unit, nil
	}

	var items []CheckoutItem
	var total int64
	for _, li := range invoice.LineItems {
		if li.Quantity <= 0 || !li.UnitPrice.IsPositive() {
			continue
		}
		unit := money.MinorUnits(li.UnitPrice)
		items = append(items, CheckoutItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  unit,
		})
		total += li.Quantity * unit
	}

	if len(items) == 0 {
		return nil, 0, Errorf(KindValidation, op, "invoice %s has no billable line items", invoice.Number)
	}
	if total <= 0 {
		return nil, 0, Errorf(KindValidation, op, "invoice %s resolves to a non-positive checkout total", invoice.Number)
	}

	return items, total, nil
}

// SuccessURL is the checkout completion redirect target. The provider
// stores it at link-creation time and keeps redirecting there whatever
// the configuration says later, so the shape must stay stable.
func SuccessURL(baseURL, invoiceID string) string {
	return fmt.Sprintf("%s/invoices/paid?invoice=%s", baseURL, invoiceID)
}

// CancelURL points an abandoned checkout back at the invoice
func CancelURL(baseURL, invoiceID string) string {
	return fmt.Sprintf("%s/invoices/%s", baseURL, invoiceID)
}

// Metadata builds the context map every checkout object carries
func Metadata(invoice *models.Invoice) map[string]string {
	meta := map[string]string{
		MetaInvoiceID:       invoice.ID,
		MetaInvoiceNumber:   invoice.Number,
		MetaRequiresDeposit: fmt.Sprintf("%t", invoice.RequiresDeposit),
	}
	if invoice.RequiresDeposit {
		meta[MetaDepositAmount] = invoice.DepositDue().String()
		if invoice.DepositType != "" {
			meta[MetaDepositType] = invoice.DepositType
		}
	}
	return meta
}
