package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
)

// InvoiceRepository handles invoice database operations
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

const invoiceColumns = `
	id, number, workspace_id, customer_id, customer_email, currency,
	subtotal, total, status, requires_deposit, deposit_amount,
	deposit_type, payment_link_url, created_at, updated_at
`

// Create inserts an invoice and its line items. Missing ids are
// generated; line items are stored in slice order.
func (r *InvoiceRepository) Create(tx *sql.Tx, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	query := `
		INSERT INTO invoices (
			id, number, workspace_id, customer_id, customer_email, currency,
			subtotal, total, status, requires_deposit, deposit_amount,
			deposit_type, payment_link_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var depositAmount interface{}
	if invoice.DepositAmount != nil {
		depositAmount = invoice.DepositAmount.String()
	}
	var depositType interface{}
	if invoice.DepositType != "" {
		depositType = invoice.DepositType
	}

	args := []interface{}{
		invoice.ID,
		invoice.Number,
		invoice.WorkspaceID,
		invoice.CustomerID,
		invoice.CustomerEmail,
		invoice.Currency,
		invoice.Subtotal.String(),
		invoice.Total.String(),
		invoice.Status,
		invoice.RequiresDeposit,
		depositAmount,
		depositType,
		invoice.PaymentLinkURL,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(query, args...)
	} else {
		_, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("number", invoice.Number),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	for i := range invoice.LineItems {
		item := &invoice.LineItems[i]
		item.InvoiceID = invoice.ID
		item.Position = i
		if err := r.createLineItem(tx, item); err != nil {
			return err
		}
	}

	return nil
}

func (r *InvoiceRepository) createLineItem(tx *sql.Tx, item *models.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	query := `
		INSERT INTO invoice_line_items (id, invoice_id, position, description, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	args := []interface{}{
		item.ID,
		item.InvoiceID,
		item.Position,
		item.Description,
		item.Quantity,
		item.UnitPrice.String(),
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(query, args...)
	} else {
		_, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to create line item",
			zap.String("invoice_id", item.InvoiceID),
			zap.Error(err))
		return fmt.Errorf("failed to create line item: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice with its line items. Returns (nil, nil)
// when no invoice exists.
func (r *InvoiceRepository) GetByID(id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	invoice, err := r.scanInvoice(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	items, err := r.getLineItems(id)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items

	return invoice, nil
}

// GetForUpdate reads an invoice inside a reconciliation transaction
// without loading line items. Returns (nil, nil) when absent.
func (r *InvoiceRepository) GetForUpdate(tx *sql.Tx, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, id)
	} else {
		row = r.db.QueryRow(query, id)
	}

	invoice, err := r.scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// List returns invoices newest first
func (r *InvoiceRepository) List(limit, offset int) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := r.scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	return invoices, rows.Err()
}

// UpdateStatus sets the invoice status
func (r *InvoiceRepository) UpdateStatus(tx *sql.Tx, id, status string) error {
	query := `UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, status, time.Now().UTC(), id)
	} else {
		_, err = r.db.Exec(query, status, time.Now().UTC(), id)
	}
	if err != nil {
		r.logger.Error("Failed to update invoice status",
			zap.String("invoice_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	return nil
}

// SetPaymentLink stores the generated checkout URL and moves the
// invoice to the given status in one statement
func (r *InvoiceRepository) SetPaymentLink(tx *sql.Tx, id, url, status string) error {
	query := `UPDATE invoices SET payment_link_url = ?, status = ?, updated_at = ? WHERE id = ?`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, url, status, time.Now().UTC(), id)
	} else {
		_, err = r.db.Exec(query, url, status, time.Now().UTC(), id)
	}
	if err != nil {
		r.logger.Error("Failed to set payment link",
			zap.String("invoice_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to set payment link: %w", err)
	}

	return nil
}

func (r *InvoiceRepository) getLineItems(invoiceID string) ([]models.LineItem, error) {
	query := `
		SELECT id, invoice_id, position, description, quantity, unit_price
		FROM invoice_line_items
		WHERE invoice_id = ?
		ORDER BY position
	`

	rows, err := r.db.Query(query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to get line items", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		var unitPrice string

		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Position, &item.Description, &item.Quantity, &unitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}

		item.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price for item %s: %w", item.ID, err)
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *InvoiceRepository) scanInvoice(row rowScanner) (*models.Invoice, error) {
	var invoice models.Invoice
	var subtotal, total string
	var depositAmount, depositType, paymentLink sql.NullString

	err := row.Scan(
		&invoice.ID,
		&invoice.Number,
		&invoice.WorkspaceID,
		&invoice.CustomerID,
		&invoice.CustomerEmail,
		&invoice.Currency,
		&subtotal,
		&total,
		&invoice.Status,
		&invoice.RequiresDeposit,
		&depositAmount,
		&depositType,
		&paymentLink,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invoice.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("invalid subtotal for invoice %s: %w", invoice.ID, err)
	}
	if invoice.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total for invoice %s: %w", invoice.ID, err)
	}
	if depositAmount.Valid {
		amount, err := decimal.NewFromString(depositAmount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid deposit amount for invoice %s: %w", invoice.ID, err)
		}
		invoice.DepositAmount = &amount
	}
	if depositType.Valid {
		invoice.DepositType = depositType.String
	}
	if paymentLink.Valid {
		invoice.PaymentLinkURL = paymentLink.String
	}

	return &invoice, nil
}
