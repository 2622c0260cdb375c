// Package service implements the invoice workflow operations behind
// the HTTP layer: creation, sending with a hosted payment link, and
// the read surfaces.
package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/domain/lifecycle"
	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/money"
	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/pkg/database"
	"github.com/ledgerflow/paylink/pkg/utils"
)

// InvoiceService orchestrates invoice operations
type InvoiceService struct {
	db              *database.DB
	invoiceRepo     *repository.InvoiceRepository
	paymentRepo     *repository.PaymentRepository
	generators      map[string]provider.LinkGenerator
	defaultProvider string
	logger          *zap.Logger
}

// NewInvoiceService creates the service. generators maps provider
// names to their link generators; defaultProvider is used when a send
// request does not name one.
func NewInvoiceService(
	db *database.DB,
	invoiceRepo *repository.InvoiceRepository,
	paymentRepo *repository.PaymentRepository,
	generators map[string]provider.LinkGenerator,
	defaultProvider string,
	logger *zap.Logger,
) *InvoiceService {
	if defaultProvider == "" {
		defaultProvider = models.ProviderStripe
	}
	return &InvoiceService{
		db:              db,
		invoiceRepo:     invoiceRepo,
		paymentRepo:     paymentRepo,
		generators:      generators,
		defaultProvider: defaultProvider,
		logger:          logger,
	}
}

// LineItemInput is one invoice line on creation
type LineItemInput struct {
	Description string          `json:"description" binding:"required"`
	Quantity    int64           `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

// CreateInvoiceInput is the invoice creation request
type CreateInvoiceInput struct {
	Number          string           `json:"number" binding:"required"`
	WorkspaceID     string           `json:"workspace_id" binding:"required"`
	CustomerID      string           `json:"customer_id" binding:"required"`
	CustomerEmail   string           `json:"customer_email"`
	Currency        string           `json:"currency" binding:"required"`
	RequiresDeposit bool             `json:"requires_deposit"`
	DepositAmount   *decimal.Decimal `json:"deposit_amount"`
	DepositType     string           `json:"deposit_type"`
	LineItems       []LineItemInput  `json:"line_items" binding:"required"`
}

// SendResult is what SendInvoice hands back to the API layer
type SendResult struct {
	Invoice     *models.Invoice      `json:"invoice"`
	PaymentLink *provider.LinkResult `json:"payment_link"`
}

// StatusView is the synchronous status query result. Building it has
// no side effects; settlement happens only through webhooks.
type StatusView struct {
	InvoiceID      string            `json:"invoice_id"`
	Number         string            `json:"number"`
	Status         string            `json:"status"`
	PaymentLinkURL string            `json:"payment_link_url,omitempty"`
	Payments       []*models.Payment `json:"payments"`
}

// Create validates the input, computes totals and persists a DRAFT
// invoice with its line items.
func (s *InvoiceService) Create(ctx context.Context, input *CreateInvoiceInput) (*models.Invoice, error) {
	const op = "service.CreateInvoice"

	if len(input.LineItems) == 0 {
		return nil, provider.Errorf(provider.KindValidation, op, "invoice needs at least one line item")
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, provider.E(provider.KindValidation, op, err)
	}
	customerEmail := strings.TrimSpace(input.CustomerEmail)
	if customerEmail != "" {
		if err := utils.ValidateEmail(customerEmail); err != nil {
			return nil, provider.E(provider.KindValidation, op, err)
		}
	}

	subtotal := decimal.Zero
	items := make([]models.LineItem, 0, len(input.LineItems))
	for i, line := range input.LineItems {
		if line.Quantity <= 0 {
			return nil, provider.Errorf(provider.KindValidation, op, "line %d: quantity must be positive", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return nil, provider.Errorf(provider.KindValidation, op, "line %d: unit price cannot be negative", i+1)
		}
		subtotal = subtotal.Add(money.ItemAmount(line.Quantity, line.UnitPrice))
		items = append(items, models.LineItem{
			Position:    i,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	if input.RequiresDeposit {
		if input.DepositAmount == nil || input.DepositAmount.LessThanOrEqual(decimal.Zero) {
			return nil, provider.Errorf(provider.KindValidation, op, "deposit requires a positive amount")
		}
		switch input.DepositType {
		case models.DepositTypeFixed, models.DepositTypePercent:
		default:
			return nil, provider.Errorf(provider.KindValidation, op, "deposit type must be FIXED or PERCENT, got %q", input.DepositType)
		}
	}

	invoice := &models.Invoice{
		Number:          strings.TrimSpace(input.Number),
		WorkspaceID:     input.WorkspaceID,
		CustomerID:      input.CustomerID,
		CustomerEmail:   customerEmail,
		Currency:        currency,
		Subtotal:        subtotal,
		Total:           subtotal,
		Status:          models.InvoiceStatusDraft,
		RequiresDeposit: input.RequiresDeposit,
		DepositAmount:   input.DepositAmount,
		DepositType:     input.DepositType,
		LineItems:       items,
	}

	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.invoiceRepo.Create(tx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created invoice",
		zap.String("invoice_id", invoice.ID),
		zap.String("number", invoice.Number),
		zap.String("workspace_id", invoice.WorkspaceID),
		zap.String("total", invoice.Total.String()))
	return invoice, nil
}

// Send creates a hosted payment link and moves a DRAFT invoice to
// SENT. Re-sending a SENT or OVERDUE invoice regenerates the link and
// keeps the status; a PAID invoice cannot be sent again.
func (s *InvoiceService) Send(ctx context.Context, invoiceID, providerName string) (*SendResult, error) {
	const op = "service.SendInvoice"

	invoice, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, provider.Errorf(provider.KindNotFound, op, "invoice %s not found", invoiceID)
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, provider.Errorf(provider.KindValidation, op, "invoice %s is already paid", invoice.Number)
	}

	generator, err := s.pickGenerator(op, providerName)
	if err != nil {
		return nil, err
	}

	result, err := generator.CreateLink(ctx, invoice)
	if err != nil {
		return nil, err
	}

	newStatus := invoice.Status
	if invoice.Status == models.InvoiceStatusDraft {
		machine := lifecycle.NewInvoiceMachine(lifecycle.State(invoice.Status))
		if err := machine.Fire(ctx, lifecycle.TriggerSend); err != nil {
			return nil, provider.E(provider.KindValidation, op, err)
		}
		newStatus = models.InvoiceStatusSent
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.invoiceRepo.SetPaymentLink(tx, invoice.ID, result.URL, newStatus)
	})
	if err != nil {
		return nil, err
	}

	invoice.PaymentLinkURL = result.URL
	invoice.Status = newStatus

	s.logger.Info("Sent invoice",
		zap.String("invoice_id", invoice.ID),
		zap.String("number", invoice.Number),
		zap.String("provider", generator.Name()),
		zap.Int64("amount_minor", result.AmountMinor))

	return &SendResult{Invoice: invoice, PaymentLink: result}, nil
}

// MarkOverdue flips a SENT invoice to OVERDUE. Exposed for the
// scheduler that owns due-date tracking; the workflow itself never
// calls it.
func (s *InvoiceService) MarkOverdue(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	const op = "service.MarkOverdue"

	invoice, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, provider.Errorf(provider.KindNotFound, op, "invoice %s not found", invoiceID)
	}

	machine := lifecycle.NewInvoiceMachine(lifecycle.State(invoice.Status))
	if err := machine.Fire(ctx, lifecycle.TriggerMarkOverdue); err != nil {
		return nil, provider.Errorf(provider.KindValidation, op, "invoice %s cannot become overdue from %s", invoice.Number, invoice.Status)
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.invoiceRepo.UpdateStatus(tx, invoice.ID, models.InvoiceStatusOverdue)
	})
	if err != nil {
		return nil, err
	}
	invoice.Status = models.InvoiceStatusOverdue

	s.logger.Info("Invoice marked overdue",
		zap.String("invoice_id", invoice.ID),
		zap.String("number", invoice.Number))
	return invoice, nil
}

// Get returns an invoice with line items
func (s *InvoiceService) Get(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	const op = "service.GetInvoice"

	invoice, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, provider.Errorf(provider.KindNotFound, op, "invoice %s not found", invoiceID)
	}
	return invoice, nil
}

// List returns invoices, newest first
func (s *InvoiceService) List(ctx context.Context, limit, offset int) ([]*models.Invoice, error) {
	return s.invoiceRepo.List(limit, offset)
}

// Status is the synchronous status query: current status, link and
// payment attempts, read straight from local state. It never asks the
// provider anything, settlement arrives via webhooks only.
func (s *InvoiceService) Status(ctx context.Context, invoiceID string) (*StatusView, error) {
	const op = "service.InvoiceStatus"

	invoice, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, provider.Errorf(provider.KindNotFound, op, "invoice %s not found", invoiceID)
	}

	payments, err := s.paymentRepo.ListByInvoice(invoice.ID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*models.Payment{}
	}

	return &StatusView{
		InvoiceID:      invoice.ID,
		Number:         invoice.Number,
		Status:         invoice.Status,
		PaymentLinkURL: invoice.PaymentLinkURL,
		Payments:       payments,
	}, nil
}

// Payments returns the attempts recorded against an invoice
func (s *InvoiceService) Payments(ctx context.Context, invoiceID string) ([]*models.Payment, error) {
	const op = "service.InvoicePayments"

	invoice, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, provider.Errorf(provider.KindNotFound, op, "invoice %s not found", invoiceID)
	}
	payments, err := s.paymentRepo.ListByInvoice(invoice.ID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}

func (s *InvoiceService) pickGenerator(op, name string) (provider.LinkGenerator, error) {
	if name == "" {
		name = s.defaultProvider
	}
	name = strings.ToLower(strings.TrimSpace(name))
	generator, ok := s.generators[name]
	if !ok {
		return nil, provider.Errorf(provider.KindConfig, op, "no payment provider registered as %q", name)
	}
	return generator, nil
}
