package class

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists classes in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const classColumns = `
	id, title, description, teacher_id, room_name, meeting_link,
	is_live, live_started_at, schedule_date, start_time, end_time,
	frequency, custom_days, is_active, created_at`

// Insert writes a new class.
func (r *Repository) Insert(ctx context.Context, c Class) (Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, title, description, teacher_id, room_name, meeting_link,
			schedule_date, start_time, end_time, frequency, custom_days)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING is_active, created_at
	`, c.ID, c.Title, c.Description, c.TeacherID, c.RoomName, c.MeetingLink,
		nullDate(c.Schedule.Date), c.Schedule.StartTime, c.Schedule.EndTime,
		defaultFrequency(c.Schedule.Frequency), strings.Join(c.Schedule.CustomDays, ","))
	if err := row.Scan(&c.IsActive, &c.CreatedAt); err != nil {
		return Class{}, err
	}
	return c, nil
}

// Get returns a class with its roster.
func (r *Repository) Get(ctx context.Context, id string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+classColumns+` FROM classes WHERE id = $1`, id)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Class{}, ErrNotFound
		}
		return Class{}, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM class_students WHERE class_id = $1 ORDER BY added_at
	`, id)
	if err != nil {
		return Class{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return Class{}, err
		}
		c.StudentIDs = append(c.StudentIDs, sid)
	}
	return c, rows.Err()
}

// List returns all classes, newest first, without rosters.
func (r *Repository) List(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+classColumns+` FROM classes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListActive returns classes still open for sessions, with rosters.
func (r *Repository) ListActive(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+classColumns+` FROM classes WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		full, err := r.Get(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].StudentIDs = full.StudentIDs
	}
	return res, nil
}

// Update overwrites the mutable class fields.
func (r *Repository) Update(ctx context.Context, c Class) (Class, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes SET title = $2, description = $3, schedule_date = $4,
			start_time = $5, end_time = $6, frequency = $7, custom_days = $8, is_active = $9
		WHERE id = $1
	`, c.ID, c.Title, c.Description, nullDate(c.Schedule.Date), c.Schedule.StartTime,
		c.Schedule.EndTime, defaultFrequency(c.Schedule.Frequency),
		strings.Join(c.Schedule.CustomDays, ","), c.IsActive)
	if err != nil {
		return Class{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Class{}, ErrNotFound
	}
	return r.Get(ctx, c.ID)
}

// Delete removes a class and, via cascades, its roster and attendance.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Enroll adds a student to the roster; re-enrolling is a no-op.
func (r *Repository) Enroll(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_students (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	return err
}

// SetLive opens the live window. The conditional update keeps repeat calls
// from resetting live_started_at for already-joined students.
func (r *Repository) SetLive(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE classes SET is_live = TRUE, live_started_at = $2
		WHERE id = $1 AND NOT is_live
	`, id, startedAt)
	return err
}

// ClearLive closes the live window.
func (r *Repository) ClearLive(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE classes SET is_live = FALSE, live_started_at = NULL WHERE id = $1
	`, id)
	return err
}

func scanClass(row interface{ Scan(...any) error }) (Class, error) {
	var (
		c          Class
		date       sql.NullTime
		started    sql.NullTime
		customDays string
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.TeacherID, &c.RoomName,
		&c.MeetingLink, &c.IsLive, &started, &date, &c.Schedule.StartTime,
		&c.Schedule.EndTime, &c.Schedule.Frequency, &customDays, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return Class{}, err
	}
	if started.Valid {
		t := started.Time
		c.LiveStartedAt = &t
	}
	if date.Valid {
		c.Schedule.Date = date.Time
	}
	if customDays != "" {
		c.Schedule.CustomDays = strings.Split(customDays, ",")
	}
	return c, nil
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func defaultFrequency(f string) string {
	if f == "" {
		return FrequencyOnce
	}
	return f
}
