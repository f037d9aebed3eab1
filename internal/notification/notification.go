package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClassID   string    `json:"class_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists notifications and reminder-send records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WasSent reports whether the (class, day, window) reminder already went out.
func (r *Repository) WasSent(ctx context.Context, classID string, day time.Time, window string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM reminders_sent WHERE class_id = $1 AND date = $2 AND window_name = $3
	`, classID, day, window).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// MarkSent records the send. The primary key makes it at-most-once per day
// per window: the second writer matches the conflict and reports false.
func (r *Repository) MarkSent(ctx context.Context, classID string, day time.Time, window string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO reminders_sent (class_id, date, window_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (class_id, date, window_name) DO NOTHING
	`, classID, day, window)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Create inserts a notification.
func (r *Repository) Create(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, class_id, kind, message)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at
	`, n.ID, n.UserID, n.ClassID, n.Kind, n.Message)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListForUser returns a user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(class_id, ''), kind, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ClassID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkRead flags a notification read; only the owner's rows match.
func (r *Repository) MarkRead(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	return err
}
