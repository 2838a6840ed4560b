package repositories

import (
	"context"
	"fmt"

	"storefront/internal/database"
	"storefront/internal/models"
)

// PaymentEventRepository keeps an audit trail of authenticated webhook
// deliveries.
type PaymentEventRepository struct {
	db *database.DB
}

// NewPaymentEventRepository creates a new payment event repository
func NewPaymentEventRepository(db *database.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

// Create records one delivery
func (r *PaymentEventRepository) Create(ctx context.Context, event *models.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (reference, event, outcome, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		event.Reference,
		event.Event,
		event.Outcome,
		string(event.Payload),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment event: %w", err)
	}
	return nil
}

// ListByReference returns the deliveries recorded for a reference, oldest first
func (r *PaymentEventRepository) ListByReference(ctx context.Context, reference string) ([]*models.PaymentEvent, error) {
	query := `
		SELECT id, reference, event, outcome, payload, created_at
		FROM payment_events
		WHERE reference = $1
		ORDER BY created_at, id`

	var events []*models.PaymentEvent
	if err := r.db.Conn(ctx).SelectContext(ctx, &events, query, reference); err != nil {
		return nil, fmt.Errorf("failed to list payment events: %w", err)
	}
	return events, nil
}
