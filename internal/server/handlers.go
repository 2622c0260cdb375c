package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/internal/service"
)

// Handlers contains the HTTP handlers for the invoice API
type Handlers struct {
	invoices *service.InvoiceService
	events   *repository.WebhookEventRepository
	logger   *zap.Logger
}

// NewHandlers creates handlers backed by the invoice service
func NewHandlers(invoices *service.InvoiceService, events *repository.WebhookEventRepository, logger *zap.Logger) *Handlers {
	return &Handlers{
		invoices: invoices,
		events:   events,
		logger:   logger,
	}
}

// Response is the standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type listRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (r *listRequest) normalize() {
	if r.Limit <= 0 || r.Limit > 100 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

type sendRequest struct {
	Provider string `json:"provider"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
	})
}

// CreateInvoice handles POST /api/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var input service.CreateInvoiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
		})
		return
	}

	invoice, err := h.invoices.Create(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    invoice,
	})
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid query parameters: " + err.Error(),
		})
		return
	}
	req.normalize()

	invoices, err := h.invoices.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    invoices,
	})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    invoice,
	})
}

// InvoiceStatus handles GET /api/invoices/:id/status
func (h *Handlers) InvoiceStatus(c *gin.Context) {
	status, err := h.invoices.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    status,
	})
}

// SendInvoice handles POST /api/invoices/:id/send
func (h *Handlers) SendInvoice(c *gin.Context) {
	// The body is optional: an empty body means the default provider.
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.invoices.Send(c.Request.Context(), c.Param("id"), req.Provider)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// MarkOverdue handles POST /api/invoices/:id/overdue
func (h *Handlers) MarkOverdue(c *gin.Context) {
	invoice, err := h.invoices.MarkOverdue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    invoice,
	})
}

// ListInvoicePayments handles GET /api/invoices/:id/payments
func (h *Handlers) ListInvoicePayments(c *gin.Context) {
	payments, err := h.invoices.Payments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    payments,
	})
}

// ListWebhookEvents handles GET /api/webhook-events
func (h *Handlers) ListWebhookEvents(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "Invalid query parameters: " + err.Error(),
		})
		return
	}
	req.normalize()

	events, err := h.events.List(req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    events,
	})
}

// respondError translates tagged domain errors into HTTP statuses
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch provider.KindOf(err) {
	case provider.KindValidation:
		status = http.StatusUnprocessableEntity
	case provider.KindNotFound:
		status = http.StatusNotFound
	case provider.KindConfig:
		status = http.StatusServiceUnavailable
	case provider.KindProvider:
		status = http.StatusBadGateway
	case provider.KindAuth:
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
	})
}
