package live

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store keeps session tokens on the per-(class, student, day) attendance row.
// The row's unique constraint on that triple is the concurrency primitive:
// conflicting writers serialize on the conditional upsert, not on any
// in-process lock.
type Store struct {
	db *sql.DB
}

// NewStore creates a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// IssueToken upserts today's record with a fresh token. The update is refused
// (zero rows) when an unexpired token is still outstanding, so two concurrent
// requests can never both come away holding valid tokens.
func (s *Store) IssueToken(ctx context.Context, classID, studentID string, day time.Time, g TokenGrant) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, class_id, student_id, date, join_time, class_start_time,
			active_session, join_token, token_expiry)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
		ON CONFLICT (class_id, student_id, date) DO UPDATE SET
			join_time = EXCLUDED.join_time,
			class_start_time = EXCLUDED.class_start_time,
			active_session = TRUE,
			join_token = EXCLUDED.join_token,
			token_expiry = EXCLUDED.token_expiry
		WHERE NOT (attendance.active_session
			AND attendance.token_expiry IS NOT NULL
			AND attendance.token_expiry > EXCLUDED.join_time)
		RETURNING id
	`, uuid.NewString(), classID, studentID, day, g.JoinTime, nullTime(g.ClassStart), g.Token, g.Expiry)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ConsumeToken clears the token fields when the presented token matches and
// is still unexpired, leaving active_session set until the leave path runs.
// Only one of two concurrent consumers can match; the loser sees the cleared
// token and fails ErrInvalidToken.
func (s *Store) ConsumeToken(ctx context.Context, classID, studentID, token string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance SET join_token = NULL, token_expiry = NULL
		WHERE class_id = $1 AND student_id = $2 AND join_token = $3 AND token_expiry > $4
	`, classID, studentID, token, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Distinguish a stale-but-matching token from no match at all.
	row := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance
		WHERE class_id = $1 AND student_id = $2 AND join_token = $3
	`, classID, studentID, token)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidToken
		}
		return err
	}
	return ErrTokenExpired
}

// ClearSession ends the day's session. Zero matched rows is not an error.
func (s *Store) ClearSession(ctx context.Context, classID, studentID string, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attendance
		SET active_session = FALSE, join_token = NULL, token_expiry = NULL
		WHERE class_id = $1 AND student_id = $2 AND date = $3
	`, classID, studentID, day)
	return err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
