package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/projectdesk/notify/internal/model"
)

var ErrNoNotificationsFound = errors.New("no notifications found")

// Repository stores emitted notifications so the dashboard can render a
// notification history.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new notification history repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateNotification inserts an emitted notification and returns its ID.
func (r *Repository) CreateNotification(ctx context.Context, n model.Notification) (uuid.UUID, error) {
	query := `
		INSERT INTO notification_history (
		    type, message, payload, created_at
		) VALUES ($1, $2, $3, $4)
		RETURNING id;
    `

	var payload interface{}
	if n.Payload != nil {
		b, err := json.Marshal(n.Payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = b
	}

	err := r.db.Master.QueryRowContext(
		ctx, query, n.Type, n.Message, payload, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return n.ID, nil
}

// ListRecent retrieves the most recent notifications, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, type, message, payload, created_at
		FROM notification_history
		ORDER BY created_at DESC
		LIMIT $1;
    `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			payload []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			n.Payload = json.RawMessage(payload)
		}

		notifications = append(notifications, n)
	}

	if len(notifications) == 0 {
		return nil, ErrNoNotificationsFound
	}

	return notifications, nil
}
