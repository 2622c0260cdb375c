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

// PaymentRepository handles payment database operations. The
// UNIQUE(invoice_id, provider_key) index backing Upsert is what makes
// webhook redelivery collapse into a single row.
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

const paymentColumns = `
	id, invoice_id, amount, currency, status, provider, provider_key,
	intent_key, processed_at, raw_payload, created_at, updated_at
`

// Upsert inserts the payment or, when (invoice_id, provider_key)
// already exists, updates the existing row in place: status, amount,
// raw payload and processed timestamp are refreshed, the original id
// and created_at survive. An empty intent key never overwrites a
// stored one.
func (r *PaymentRepository) Upsert(tx *sql.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.UpdatedAt = now
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}

	query := `
		INSERT INTO payments (
			id, invoice_id, amount, currency, status, provider, provider_key,
			intent_key, processed_at, raw_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invoice_id, provider_key) DO UPDATE SET
			status = excluded.status,
			amount = excluded.amount,
			intent_key = CASE
				WHEN excluded.intent_key IS NULL OR excluded.intent_key = ''
				THEN payments.intent_key
				ELSE excluded.intent_key
			END,
			processed_at = excluded.processed_at,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at
	`

	var intentKey interface{}
	if payment.IntentKey != "" {
		intentKey = payment.IntentKey
	}

	args := []interface{}{
		payment.ID,
		payment.InvoiceID,
		payment.Amount.String(),
		payment.Currency,
		payment.Status,
		payment.Provider,
		payment.ProviderKey,
		intentKey,
		payment.ProcessedAt,
		payment.RawPayload,
		payment.CreatedAt,
		payment.UpdatedAt,
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(query, args...)
	} else {
		_, err = r.db.Exec(query, args...)
	}
	if err != nil {
		r.logger.Error("Failed to upsert payment",
			zap.String("invoice_id", payment.InvoiceID),
			zap.String("provider_key", payment.ProviderKey),
			zap.Error(err))
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	return nil
}

// GetByInvoiceAndKey fetches the payment for an idempotency key.
// Returns (nil, nil) when no attempt has been recorded.
func (r *PaymentRepository) GetByInvoiceAndKey(tx *sql.Tx, invoiceID, providerKey string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = ? AND provider_key = ?`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRow(query, invoiceID, providerKey)
	} else {
		row = r.db.QueryRow(query, invoiceID, providerKey)
	}

	payment, err := r.scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment",
			zap.String("invoice_id", invoiceID),
			zap.String("provider_key", providerKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// ListByIntentKey returns every payment recorded for a payment-intent id
func (r *PaymentRepository) ListByIntentKey(tx *sql.Tx, intentKey string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE intent_key = ? OR provider_key = ?`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(query, intentKey, intentKey)
	} else {
		rows, err = r.db.Query(query, intentKey, intentKey)
	}
	if err != nil {
		r.logger.Error("Failed to list payments by intent",
			zap.String("intent_key", intentKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list payments by intent: %w", err)
	}
	defer rows.Close()

	return r.collectPayments(rows)
}

// ListByInvoice returns the payment attempts for an invoice, oldest first
func (r *PaymentRepository) ListByInvoice(invoiceID string) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = ? ORDER BY created_at, id`

	rows, err := r.db.Query(query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list payments",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	return r.collectPayments(rows)
}

// UpdateOutcome moves one payment row to a new status, refreshing the
// audit payload and processed timestamp
func (r *PaymentRepository) UpdateOutcome(tx *sql.Tx, id, status, rawPayload string, processedAt time.Time) error {
	query := `
		UPDATE payments
		SET status = ?, raw_payload = ?, processed_at = ?, updated_at = ?
		WHERE id = ?
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, status, rawPayload, processedAt, time.Now().UTC(), id)
	} else {
		_, err = r.db.Exec(query, status, rawPayload, processedAt, time.Now().UTC(), id)
	}
	if err != nil {
		r.logger.Error("Failed to update payment outcome",
			zap.String("payment_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update payment outcome: %w", err)
	}

	return nil
}

// Touch refreshes the stored payload and processed timestamp without
// changing status. Used when a terminal payment sees a replayed event.
func (r *PaymentRepository) Touch(tx *sql.Tx, id, rawPayload string, processedAt time.Time) error {
	query := `
		UPDATE payments
		SET raw_payload = ?, processed_at = ?, updated_at = ?
		WHERE id = ?
	`

	var err error
	if tx != nil {
		_, err = tx.Exec(query, rawPayload, processedAt, time.Now().UTC(), id)
	} else {
		_, err = r.db.Exec(query, rawPayload, processedAt, time.Now().UTC(), id)
	}
	if err != nil {
		r.logger.Error("Failed to touch payment",
			zap.String("payment_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to touch payment: %w", err)
	}

	return nil
}

func (r *PaymentRepository) collectPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) scanPayment(row rowScanner) (*models.Payment, error) {
	var payment models.Payment
	var amount string
	var intentKey, rawPayload sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&payment.ID,
		&payment.InvoiceID,
		&amount,
		&payment.Currency,
		&payment.Status,
		&payment.Provider,
		&payment.ProviderKey,
		&intentKey,
		&processedAt,
		&rawPayload,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payment.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount for payment %s: %w", payment.ID, err)
	}
	if intentKey.Valid {
		payment.IntentKey = intentKey.String
	}
	if rawPayload.Valid {
		payment.RawPayload = rawPayload.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		payment.ProcessedAt = &t
	}

	return &payment, nil
}
