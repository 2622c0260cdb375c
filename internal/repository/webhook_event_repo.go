package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
)

// WebhookEventRepository persists the verified-delivery audit log
type WebhookEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sql.DB, logger *zap.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores a verified delivery. When the provider redelivers an
// event id we already hold, the original row is kept and duplicate is
// returned true; reconciliation still runs, replay safety lives in the
// payment upsert.
func (r *WebhookEventRepository) Record(event *models.WebhookEvent) (duplicate bool, err error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT OR IGNORE INTO webhook_events (
			id, provider, provider_event_id, event_type, signature_valid,
			payload, received_at, processing_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.SignatureValid,
		event.Payload,
		event.ReceivedAt,
		event.ProcessingError,
	)
	if err != nil {
		r.logger.Error("Failed to record webhook event",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Error(err))
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 0, nil
}

// MarkProcessed records the reconciliation outcome for a delivery
func (r *WebhookEventRepository) MarkProcessed(provider, providerEventID, processingError string) error {
	query := `
		UPDATE webhook_events
		SET processed_at = ?, processing_error = ?
		WHERE provider = ? AND provider_event_id = ?
	`

	_, err := r.db.Exec(query, time.Now().UTC(), processingError, provider, providerEventID)
	if err != nil {
		r.logger.Error("Failed to mark webhook event processed",
			zap.String("provider", provider),
			zap.String("provider_event_id", providerEventID),
			zap.Error(err))
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}

	return nil
}

// List returns recent deliveries, newest first
func (r *WebhookEventRepository) List(limit, offset int) ([]*models.WebhookEvent, error) {
	query := `
		SELECT id, provider, provider_event_id, event_type, signature_valid,
			payload, received_at, processed_at, processing_error
		FROM webhook_events
		ORDER BY received_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list webhook events", zap.Error(err))
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		var event models.WebhookEvent
		var processedAt sql.NullTime
		var processingError sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.Provider,
			&event.ProviderEventID,
			&event.EventType,
			&event.SignatureValid,
			&event.Payload,
			&event.ReceivedAt,
			&processedAt,
			&processingError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}

		if processedAt.Valid {
			t := processedAt.Time
			event.ProcessedAt = &t
		}
		if processingError.Valid {
			event.ProcessingError = processingError.String
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}
