package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/provider"
	"github.com/ledgerflow/paylink/internal/reconcile"
)

// maxBodyBytes caps webhook payloads. Provider events are a few KB;
// anything near the cap is not a real delivery.
const maxBodyBytes = 1 << 20

// Handler terminates provider webhook deliveries
type Handler struct {
	registry *Registry
	engine   *reconcile.Engine
	logger   *zap.Logger
}

// NewHandler creates a webhook handler
func NewHandler(registry *Registry, engine *reconcile.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		engine:   engine,
		logger:   logger,
	}
}

// Handle processes one provider delivery; the provider name comes
// from the route parameter.
//
// Response contract: 200 {"received": true} for every verified event,
// including types the workflow ignores and events referencing unknown
// invoices; 400 for a missing or invalid signature; 500 only for
// unexpected processing failures, which makes the provider redeliver.
func (h *Handler) Handle(c *gin.Context) {
	providerName := c.Param("provider")
	ep, ok := h.registry.lookup(providerName)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body",
			zap.String("provider", providerName),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := ep.verifier.VerifyWebhook(body, c.Request.Header)
	if err != nil {
		if provider.IsKind(err, provider.KindAuth) {
			h.logger.Warn("Webhook signature verification failed",
				zap.String("provider", providerName),
				zap.String("remote_addr", c.ClientIP()),
				zap.Error(err))
			h.engine.RecordRejected(providerName, body, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		h.logger.Error("Webhook payload rejected after verification",
			zap.String("provider", providerName),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if ep.enricher != nil {
		if err := ep.enricher.EnrichEvent(c.Request.Context(), event); err != nil {
			// Without the recovered context the event would silently
			// no-op; a 500 makes the provider redeliver when the
			// lookup can succeed.
			h.logger.Error("Failed to enrich webhook event",
				zap.String("provider", providerName),
				zap.String("event_id", event.EventID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event context lookup failed"})
			return
		}
	}

	if err := h.engine.ProcessEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("Webhook event processing failed",
			zap.String("provider", providerName),
			zap.String("event_id", event.EventID),
			zap.String("type", event.Type),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
