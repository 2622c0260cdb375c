// Package export writes the invoice register: an Excel workbook with
// one sheet of invoices and one of their payment attempts, for
// bookkeeping handoff.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
)

// Sheet layout
const (
	invoiceSheet = "Invoices"
	paymentSheet = "Payments"

	headerRow    = 1
	dataRowStart = 2

	dateFormat = "2006-01-02 15:04:05"
)

var invoiceHeaders = []interface{}{
	"Number", "Workspace", "Customer", "Status", "Currency",
	"Subtotal", "Total", "Deposit", "Payment Link", "Created",
}

var paymentHeaders = []interface{}{
	"Invoice", "Provider", "Status", "Amount", "Currency",
	"Checkout Key", "Intent Key", "Processed", "Created",
}

// Writer builds invoice register workbooks
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates an export writer
func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteRegister writes the workbook to outputPath. payments is keyed
// by invoice ID; payment rows carry the invoice number so the sheet
// reads standalone.
func (w *Writer) WriteRegister(outputPath string, invoices []*models.Invoice, payments map[string][]*models.Payment) error {
	w.logger.Info("Writing invoice register",
		zap.String("output_path", outputPath),
		zap.Int("invoice_count", len(invoices)))

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), invoiceSheet)
	if _, err := f.NewSheet(paymentSheet); err != nil {
		return fmt.Errorf("failed to create payments sheet: %w", err)
	}

	if err := w.fillInvoiceSheet(f, invoices); err != nil {
		return err
	}
	if err := w.fillPaymentSheet(f, invoices, payments); err != nil {
		return err
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("Invoice register written",
		zap.String("output_path", outputPath))

	return nil
}

func (w *Writer) fillInvoiceSheet(f *excelize.File, invoices []*models.Invoice) error {
	if err := w.writeRow(f, invoiceSheet, headerRow, invoiceHeaders); err != nil {
		return err
	}

	for i, invoice := range invoices {
		row := []interface{}{
			invoice.Number,
			invoice.WorkspaceID,
			invoice.CustomerID,
			invoice.Status,
			invoice.Currency,
			invoice.Subtotal.StringFixed(2),
			invoice.Total.StringFixed(2),
			depositTerms(invoice),
			invoice.PaymentLinkURL,
			invoice.CreatedAt.Format(dateFormat),
		}
		if err := w.writeRow(f, invoiceSheet, dataRowStart+i, row); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) fillPaymentSheet(f *excelize.File, invoices []*models.Invoice, payments map[string][]*models.Payment) error {
	if err := w.writeRow(f, paymentSheet, headerRow, paymentHeaders); err != nil {
		return err
	}

	numbers := make(map[string]string, len(invoices))
	for _, invoice := range invoices {
		numbers[invoice.ID] = invoice.Number
	}

	row := dataRowStart
	for _, invoice := range invoices {
		for _, payment := range payments[invoice.ID] {
			processed := ""
			if payment.ProcessedAt != nil {
				processed = payment.ProcessedAt.Format(dateFormat)
			}
			values := []interface{}{
				numbers[payment.InvoiceID],
				payment.Provider,
				payment.Status,
				payment.Amount.StringFixed(2),
				payment.Currency,
				payment.ProviderKey,
				payment.IntentKey,
				processed,
				payment.CreatedAt.Format(dateFormat),
			}
			if err := w.writeRow(f, paymentSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}

	return nil
}

func (w *Writer) writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

// depositTerms renders the deposit column: empty when the invoice
// collects full payment.
func depositTerms(invoice *models.Invoice) string {
	if !invoice.RequiresDeposit || invoice.DepositAmount == nil {
		return ""
	}
	if invoice.DepositType == models.DepositTypePercent {
		return invoice.DepositAmount.StringFixed(0) + "%"
	}
	return invoice.DepositAmount.StringFixed(2)
}
