// Package notify delivers customer-facing notifications for invoice
// lifecycle events. Delivery is best-effort: callers fire it after the
// database transition commits and a failure is logged, never surfaced
// to the payment provider.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
)

// Notifier sends the paid confirmation for an invoice
type Notifier interface {
	NotifyInvoicePaid(ctx context.Context, invoice *models.Invoice) error
}

// NopNotifier drops notifications, used when no email provider is
// configured
type NopNotifier struct {
	logger *zap.Logger
}

// NewNopNotifier creates a notifier that only logs
func NewNopNotifier(logger *zap.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

// NotifyInvoicePaid implements Notifier
func (n *NopNotifier) NotifyInvoicePaid(_ context.Context, invoice *models.Invoice) error {
	n.logger.Info("Notification delivery disabled, skipping paid confirmation",
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.Number))
	return nil
}
