// Package reconcile applies verified provider events to invoices and
// payments. All state changes for one event happen in a single
// transaction; the paid notification fires only after that
// transaction commits.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/domain/lifecycle"
	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/money"
	"github.com/ledgerflow/paylink/internal/notify"
	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/pkg/database"
)

// Engine reconciles webhook events against the invoice ledger
type Engine struct {
	db          *database.DB
	invoiceRepo *repository.InvoiceRepository
	paymentRepo *repository.PaymentRepository
	eventRepo   *repository.WebhookEventRepository
	notifier    notify.Notifier
	logger      *zap.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(
	db *database.DB,
	invoiceRepo *repository.InvoiceRepository,
	paymentRepo *repository.PaymentRepository,
	eventRepo *repository.WebhookEventRepository,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:          db,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// ProcessEvent records the delivery, applies it in one transaction and
// fires the paid notification for any invoice that settled. Events
// referencing unknown invoices or attempts are logged and absorbed, so
// the provider is not asked to redeliver what can never reconcile.
func (e *Engine) ProcessEvent(ctx context.Context, event *provider.Event) error {
	if event.EventID != "" {
		duplicate, err := e.eventRepo.Record(&models.WebhookEvent{
			Provider:        event.Provider,
			ProviderEventID: event.EventID,
			EventType:       event.Type,
			SignatureValid:  true,
			Payload:         string(event.Raw),
		})
		if err != nil {
			return err
		}
		if duplicate {
			e.logger.Info("Webhook event redelivered",
				zap.String("provider", event.Provider),
				zap.String("event_id", event.EventID),
				zap.String("type", event.Type))
		}
	}

	var paid []*models.Invoice
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		var txErr error
		paid, txErr = e.apply(ctx, tx, event)
		return txErr
	})

	if event.EventID != "" {
		outcome := ""
		if err != nil {
			outcome = err.Error()
		}
		if markErr := e.eventRepo.MarkProcessed(event.Provider, event.EventID, outcome); markErr != nil {
			e.logger.Error("Failed to mark webhook event processed",
				zap.String("provider", event.Provider),
				zap.String("event_id", event.EventID),
				zap.Error(markErr))
		}
	}
	if err != nil {
		return err
	}

	for _, invoice := range paid {
		e.firePaidNotification(invoice)
	}
	return nil
}

// RecordRejected stores a delivery that failed signature verification.
// The body is kept for the audit surface; it is never parsed.
func (e *Engine) RecordRejected(providerName string, body []byte, verifyErr error) {
	_, err := e.eventRepo.Record(&models.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: uuid.NewString(),
		EventType:       "verification_failed",
		SignatureValid:  false,
		Payload:         string(body),
		ProcessingError: verifyErr.Error(),
	})
	if err != nil {
		e.logger.Error("Failed to record rejected webhook delivery",
			zap.String("provider", providerName),
			zap.Error(err))
	}
}

func (e *Engine) apply(ctx context.Context, tx *sql.Tx, event *provider.Event) ([]*models.Invoice, error) {
	switch event.Kind {
	case provider.EventCheckoutCompleted:
		return e.applyCheckoutCompleted(ctx, tx, event)

	case provider.EventPaymentSucceeded:
		return e.applyPaymentSucceeded(ctx, tx, event)

	case provider.EventPaymentFailed:
		return nil, e.applyPaymentFailed(tx, event)

	case provider.EventPaymentPending:
		return nil, e.applyPaymentPending(tx, event)

	case provider.EventCheckoutExpired:
		// No state change. Logged for visibility; a reminder flow can
		// hook in here later.
		e.logger.Info("Checkout session expired",
			zap.String("provider", event.Provider),
			zap.String("invoice_id", event.InvoiceID),
			zap.String("provider_key", event.ProviderKey))
		return nil, nil

	case provider.EventIgnored:
		e.logger.Debug("Ignoring webhook event type",
			zap.String("provider", event.Provider),
			zap.String("type", event.Type))
		return nil, nil

	default:
		e.logger.Warn("Unhandled webhook event kind",
			zap.String("provider", event.Provider),
			zap.String("kind", string(event.Kind)))
		return nil, nil
	}
}

// applyCheckoutCompleted settles the checkout's invoice: the payment
// row is upserted to SUCCEEDED and the invoice marked PAID. A deposit
// checkout settles the whole invoice, not a fraction of it.
func (e *Engine) applyCheckoutCompleted(ctx context.Context, tx *sql.Tx, event *provider.Event) ([]*models.Invoice, error) {
	if event.InvoiceID == "" {
		e.logger.Warn("Checkout completed without invoice metadata, ignoring",
			zap.String("provider", event.Provider),
			zap.String("provider_key", event.ProviderKey))
		return nil, nil
	}
	providerKey := correlationKey(event)
	if providerKey == "" {
		e.logger.Warn("Checkout completed without a correlation key, ignoring",
			zap.String("provider", event.Provider),
			zap.String("invoice_id", event.InvoiceID))
		return nil, nil
	}

	invoice, err := e.invoiceRepo.GetForUpdate(tx, event.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		e.logger.Warn("Checkout completed for unknown invoice, ignoring",
			zap.String("provider", event.Provider),
			zap.String("invoice_id", event.InvoiceID),
			zap.String("provider_key", providerKey))
		return nil, nil
	}

	if err := e.settlePayment(tx, event, invoice, providerKey); err != nil {
		return nil, err
	}

	transitioned, err := e.settleInvoice(ctx, tx, invoice, event)
	if err != nil {
		return nil, err
	}
	if transitioned {
		return []*models.Invoice{invoice}, nil
	}
	return nil, nil
}

// applyPaymentSucceeded settles recorded attempts matching the event's
// correlation keys. With no recorded attempt but known invoice
// metadata it settles the invoice directly; without either it is a
// no-op, a payment is never fabricated against an unknown invoice.
func (e *Engine) applyPaymentSucceeded(ctx context.Context, tx *sql.Tx, event *provider.Event) ([]*models.Invoice, error) {
	rows, err := e.findCorrelated(tx, event)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		if event.InvoiceID == "" {
			e.logger.Warn("Payment succeeded for unknown attempt, ignoring",
				zap.String("provider", event.Provider),
				zap.String("intent_key", event.IntentKey),
				zap.String("provider_key", event.ProviderKey))
			return nil, nil
		}
		return e.applyCheckoutCompleted(ctx, tx, event)
	}

	now := time.Now().UTC()
	var paid []*models.Invoice
	for _, row := range rows {
		switch row.Status {
		case models.PaymentStatusSucceeded:
			// Replay: refresh the audit payload, keep the outcome.
			if err := e.paymentRepo.Touch(tx, row.ID, string(event.Raw), now); err != nil {
				return nil, err
			}

		case models.PaymentStatusFailed:
			e.logger.Warn("Payment success reported after recorded failure, keeping terminal state",
				zap.String("payment_id", row.ID),
				zap.String("invoice_id", row.InvoiceID),
				zap.String("provider", event.Provider))
			if err := e.paymentRepo.Touch(tx, row.ID, string(event.Raw), now); err != nil {
				return nil, err
			}

		case models.PaymentStatusPending:
			machine := lifecycle.NewPaymentMachine(lifecycle.State(row.Status))
			if err := machine.Fire(ctx, lifecycle.TriggerSucceed); err != nil {
				return nil, fmt.Errorf("payment %s cannot succeed from %s: %w", row.ID, row.Status, err)
			}
			if err := e.paymentRepo.UpdateOutcome(tx, row.ID, models.PaymentStatusSucceeded, string(event.Raw), now); err != nil {
				return nil, err
			}

			invoice, err := e.invoiceRepo.GetForUpdate(tx, row.InvoiceID)
			if err != nil {
				return nil, err
			}
			if invoice == nil {
				e.logger.Warn("Settled payment references missing invoice",
					zap.String("payment_id", row.ID),
					zap.String("invoice_id", row.InvoiceID))
				continue
			}
			transitioned, err := e.settleInvoice(ctx, tx, invoice, event)
			if err != nil {
				return nil, err
			}
			if transitioned {
				paid = append(paid, invoice)
			}
		}
	}
	return paid, nil
}

// applyPaymentFailed marks pending attempts failed. The invoice is
// never touched: a failed attempt does not un-send an invoice, and a
// late failure never downgrades a settled one.
func (e *Engine) applyPaymentFailed(tx *sql.Tx, event *provider.Event) error {
	rows, err := e.findCorrelated(tx, event)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		e.logger.Info("Payment failed for unknown attempt, ignoring",
			zap.String("provider", event.Provider),
			zap.String("intent_key", event.IntentKey),
			zap.String("provider_key", event.ProviderKey))
		return nil
	}

	now := time.Now().UTC()
	for _, row := range rows {
		switch row.Status {
		case models.PaymentStatusPending:
			if err := e.paymentRepo.UpdateOutcome(tx, row.ID, models.PaymentStatusFailed, string(event.Raw), now); err != nil {
				return err
			}
			e.logger.Info("Payment attempt failed",
				zap.String("payment_id", row.ID),
				zap.String("invoice_id", row.InvoiceID),
				zap.String("provider", event.Provider))

		case models.PaymentStatusSucceeded:
			e.logger.Warn("Payment failure reported after recorded success, keeping terminal state",
				zap.String("payment_id", row.ID),
				zap.String("invoice_id", row.InvoiceID))
			if err := e.paymentRepo.Touch(tx, row.ID, string(event.Raw), now); err != nil {
				return err
			}

		case models.PaymentStatusFailed:
			if err := e.paymentRepo.Touch(tx, row.ID, string(event.Raw), now); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyPaymentPending records an in-flight attempt. Known attempts are
// refreshed; a new row is created only when the event carries invoice
// metadata.
func (e *Engine) applyPaymentPending(tx *sql.Tx, event *provider.Event) error {
	rows, err := e.findCorrelated(tx, event)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if len(rows) > 0 {
		for _, row := range rows {
			if err := e.paymentRepo.Touch(tx, row.ID, string(event.Raw), now); err != nil {
				return err
			}
		}
		return nil
	}

	if event.InvoiceID == "" {
		e.logger.Info("Payment pending for unknown attempt, ignoring",
			zap.String("provider", event.Provider),
			zap.String("intent_key", event.IntentKey),
			zap.String("provider_key", event.ProviderKey))
		return nil
	}
	providerKey := correlationKey(event)
	if providerKey == "" {
		return nil
	}

	invoice, err := e.invoiceRepo.GetForUpdate(tx, event.InvoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		e.logger.Warn("Payment pending for unknown invoice, ignoring",
			zap.String("provider", event.Provider),
			zap.String("invoice_id", event.InvoiceID))
		return nil
	}

	payment := &models.Payment{
		InvoiceID:   invoice.ID,
		Amount:      money.FromMinorUnits(event.AmountMinor),
		Currency:    eventCurrency(event, invoice),
		Status:      models.PaymentStatusPending,
		Provider:    event.Provider,
		ProviderKey: providerKey,
		IntentKey:   event.IntentKey,
		RawPayload:  string(event.Raw),
	}
	if err := e.paymentRepo.Upsert(tx, payment); err != nil {
		return err
	}

	e.logger.Info("Recorded pending payment attempt",
		zap.String("invoice_id", invoice.ID),
		zap.String("provider", event.Provider),
		zap.String("provider_key", providerKey))
	return nil
}

// settlePayment upserts the SUCCEEDED payment row for a settled
// checkout. Replays land on the same (invoice, provider key) row and
// refresh it; a row already failed keeps its terminal state.
func (e *Engine) settlePayment(tx *sql.Tx, event *provider.Event, invoice *models.Invoice, providerKey string) error {
	now := time.Now().UTC()

	existing, err := e.paymentRepo.GetByInvoiceAndKey(tx, invoice.ID, providerKey)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == models.PaymentStatusFailed {
		e.logger.Warn("Checkout settled after recorded failure, keeping terminal state",
			zap.String("payment_id", existing.ID),
			zap.String("invoice_id", invoice.ID))
		return e.paymentRepo.Touch(tx, existing.ID, string(event.Raw), now)
	}

	payment := &models.Payment{
		InvoiceID:   invoice.ID,
		Amount:      money.FromMinorUnits(event.AmountMinor),
		Currency:    eventCurrency(event, invoice),
		Status:      models.PaymentStatusSucceeded,
		Provider:    event.Provider,
		ProviderKey: providerKey,
		IntentKey:   event.IntentKey,
		ProcessedAt: &now,
		RawPayload:  string(event.Raw),
	}
	return e.paymentRepo.Upsert(tx, payment)
}

// settleInvoice marks the invoice PAID through the lifecycle machine.
// An invoice already PAID absorbs the replay. The webhook wins over
// local state: DRAFT and OVERDUE invoices settle the same way SENT
// ones do.
func (e *Engine) settleInvoice(ctx context.Context, tx *sql.Tx, invoice *models.Invoice, event *provider.Event) (bool, error) {
	if invoice.Status == models.InvoiceStatusPaid {
		e.logger.Info("Invoice already paid, absorbing replay",
			zap.String("invoice_id", invoice.ID),
			zap.String("provider", event.Provider))
		return false, nil
	}

	machine := lifecycle.NewInvoiceMachine(lifecycle.State(invoice.Status))
	if err := machine.Fire(ctx, lifecycle.TriggerMarkPaid); err != nil {
		return false, fmt.Errorf("invoice %s cannot settle from %s: %w", invoice.ID, invoice.Status, err)
	}
	if err := e.invoiceRepo.UpdateStatus(tx, invoice.ID, models.InvoiceStatusPaid); err != nil {
		return false, err
	}
	invoice.Status = models.InvoiceStatusPaid

	e.logger.Info("Invoice paid",
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.Number),
		zap.String("provider", event.Provider),
		zap.Int64("amount_minor", event.AmountMinor))
	return true, nil
}

// findCorrelated collects payment rows matching the event's intent or
// provider key. Stripe intent events carry only the intent id; Square
// payment events carry the order id in the provider key slot.
func (e *Engine) findCorrelated(tx *sql.Tx, event *provider.Event) ([]*models.Payment, error) {
	if event.IntentKey != "" {
		rows, err := e.paymentRepo.ListByIntentKey(tx, event.IntentKey)
		if err != nil || len(rows) > 0 {
			return rows, err
		}
	}
	if event.ProviderKey != "" {
		return e.paymentRepo.ListByIntentKey(tx, event.ProviderKey)
	}
	return nil, nil
}

// firePaidNotification sends the confirmation without blocking the
// webhook response. A delivery failure is logged and dropped; the
// ledger is already consistent.
func (e *Engine) firePaidNotification(invoice *models.Invoice) {
	if e.notifier == nil {
		return
	}
	go func(inv *models.Invoice) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.notifier.NotifyInvoicePaid(ctx, inv); err != nil {
			e.logger.Error("Paid notification failed",
				zap.String("invoice_id", inv.ID),
				zap.String("invoice_number", inv.Number),
				zap.Error(err))
		}
	}(invoice)
}

func correlationKey(event *provider.Event) string {
	if event.ProviderKey != "" {
		return event.ProviderKey
	}
	return event.IntentKey
}

func eventCurrency(event *provider.Event, invoice *models.Invoice) string {
	if event.Currency != "" {
		return event.Currency
	}
	return invoice.Currency
}
