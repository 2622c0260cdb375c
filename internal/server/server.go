// Package server wires the invoice API and the provider webhook
// endpoints into one gin router with lifecycle management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/internal/service"
	"github.com/ledgerflow/paylink/internal/webhook"
)

// Config holds HTTP server configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP adapter over the invoice workflow
type Server struct {
	config         Config
	httpServer     *http.Server
	router         *gin.Engine
	handlers       *Handlers
	webhookHandler *webhook.Handler
	logger         *zap.Logger
}

// NewServer builds the router with middleware and routes configured
func NewServer(
	config Config,
	invoiceService *service.InvoiceService,
	eventRepo *repository.WebhookEventRepository,
	webhookHandler *webhook.Handler,
	logger *zap.Logger,
) *Server {
	router := gin.New()

	server := &Server{
		config:         config,
		router:         router,
		handlers:       NewHandlers(invoiceService, eventRepo, logger),
		webhookHandler: webhookHandler,
		logger:         logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(CORSMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	// Webhook deliveries bypass the API envelope: providers expect the
	// raw response contract.
	s.router.POST("/webhooks/:provider", s.webhookHandler.Handle)

	api := s.router.Group("/api")
	{
		api.POST("/invoices", s.handlers.CreateInvoice)
		api.GET("/invoices", s.handlers.ListInvoices)
		api.GET("/invoices/:id", s.handlers.GetInvoice)
		api.GET("/invoices/:id/status", s.handlers.InvoiceStatus)
		api.POST("/invoices/:id/send", s.handlers.SendInvoice)
		api.POST("/invoices/:id/overdue", s.handlers.MarkOverdue)
		api.GET("/invoices/:id/payments", s.handlers.ListInvoicePayments)
		api.GET("/webhook-events", s.handlers.ListWebhookEvents)
	}
}

// Start runs the server until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("HTTP server listening", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
