package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
)

const defaultResendBaseURL = "https://api.resend.com"

// ResendConfig holds the Resend email settings
type ResendConfig struct {
	APIKey  string
	From    string
	BaseURL string
	Timeout time.Duration
}

// ResendSender sends paid confirmations through the Resend email API
type ResendSender struct {
	httpClient *http.Client
	cfg        ResendConfig
	logger     *zap.Logger
}

// NewResendSender creates an email sender. The BaseURL override exists
// for tests.
func NewResendSender(cfg ResendConfig, logger *zap.Logger) *ResendSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultResendBaseURL
	}
	return &ResendSender{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

// NotifyInvoicePaid emails the customer that the invoice settled
func (s *ResendSender) NotifyInvoicePaid(ctx context.Context, invoice *models.Invoice) error {
	if invoice.CustomerEmail == "" {
		s.logger.Warn("Invoice has no customer email, skipping paid confirmation",
			zap.String("invoice_id", invoice.ID),
			zap.String("invoice_number", invoice.Number))
		return nil
	}

	subject := fmt.Sprintf("Payment received for invoice %s", invoice.Number)
	payload := sendEmailRequest{
		From:    s.cfg.From,
		To:      []string{invoice.CustomerEmail},
		Subject: subject,
		HTML:    s.buildEmailBody(invoice),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/emails", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: unexpected status %s: %s", resp.Status, detail)
	}

	var result sendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode resend response: %w", err)
	}

	s.logger.Info("Sent paid confirmation email",
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_number", invoice.Number),
		zap.String("message_id", result.ID))

	return nil
}

func (s *ResendSender) buildEmailBody(invoice *models.Invoice) string {
	return fmt.Sprintf(`<p>Hi,</p>
<p>We have received your payment for invoice <strong>%s</strong>.</p>
<p>Amount: %s %s</p>
<p>Thank you for your business.</p>`,
		invoice.Number,
		invoice.Total.StringFixed(2),
		invoice.Currency)
}
