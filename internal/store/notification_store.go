// internal/store/notification_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agrimarket-onboarding/internal/models"
)

// NotificationStore persists the delivery record of every push and email
// attempt so support can answer "was the applicant told".
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Insert(ctx context.Context, n *models.Notification) error {
	payloadJSON, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	// Undelivered attempts carry no SentAt and store NULL.
	sentAt := sql.NullString{String: n.SentAt, Valid: n.SentAt != ""}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, recipient_id, recipient_type, type, channel, status, payload, sent_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID,
		n.RecipientID,
		n.RecipientType,
		n.Type,
		n.Channel,
		n.Status,
		payloadJSON,
		sentAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
