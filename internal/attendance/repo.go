package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// MarkPresent flips the day's record to present exactly once. The conditional
// upsert makes the false→true transition race-safe: a concurrent duplicate
// matches zero rows and fails ErrAlreadyMarked. Token columns are untouched.
func (r *Repository) MarkPresent(ctx context.Context, classID, studentID string, day, joinTime, classStart, markedAt time.Time) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, class_id, student_id, date, join_time, class_start_time,
			is_present, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (class_id, student_id, date) DO UPDATE SET
			is_present = TRUE,
			join_time = EXCLUDED.join_time,
			class_start_time = EXCLUDED.class_start_time,
			marked_at = EXCLUDED.marked_at
		WHERE NOT attendance.is_present
		RETURNING id, join_time, class_start_time, marked_at, created_at
	`, uuid.NewString(), classID, studentID, day, joinTime, classStart, markedAt)

	rec := Record{ClassID: classID, StudentID: studentID, Date: day, IsPresent: true}
	var jt, cs, ma sql.NullTime
	if err := row.Scan(&rec.ID, &jt, &cs, &ma, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, err
	}
	if jt.Valid {
		rec.JoinTime = &jt.Time
	}
	if cs.Valid {
		rec.ClassStartTime = &cs.Time
	}
	if ma.Valid {
		rec.MarkedAt = &ma.Time
	}
	return rec, nil
}

// ClassRecord is a presence record joined with the student's identity.
type ClassRecord struct {
	Record
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	StudentPhone string `json:"student_phone,omitempty"`
}

// ListByClass returns a class's presence records, newest day first.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]ClassRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.class_id, a.student_id, a.date, a.join_time, a.class_start_time,
			a.is_present, a.marked_at, a.created_at, u.name, u.email, COALESCE(u.phone, '')
		FROM attendance a
		JOIN users u ON u.id = a.student_id
		WHERE a.class_id = $1 AND a.is_present
		ORDER BY a.date DESC, u.name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ClassRecord
	for rows.Next() {
		var (
			rec        ClassRecord
			jt, cs, ma sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.ClassID, &rec.StudentID, &rec.Date, &jt, &cs,
			&rec.IsPresent, &ma, &rec.CreatedAt, &rec.StudentName, &rec.StudentEmail, &rec.StudentPhone); err != nil {
			return nil, err
		}
		if jt.Valid {
			rec.JoinTime = &jt.Time
		}
		if cs.Valid {
			rec.ClassStartTime = &cs.Time
		}
		if ma.Valid {
			rec.MarkedAt = &ma.Time
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// StudentSummary is one student's presence stats for a class.
type StudentSummary struct {
	StudentID            string      `json:"student_id"`
	StudentName          string      `json:"student_name"`
	StudentEmail         string      `json:"student_email"`
	StudentPhone         string      `json:"student_phone,omitempty"`
	PresentCount         int         `json:"present_count"`
	TotalSessions        int         `json:"total_sessions"`
	AttendancePercentage float64     `json:"attendance_percentage"`
	Dates                []time.Time `json:"dates,omitempty"`
}

// ClassSummary aggregates presence for a whole roster.
type ClassSummary struct {
	TotalSessions int              `json:"total_sessions"`
	Students      []StudentSummary `json:"students"`
}

// totalSessions counts distinct days on which anyone was present.
func (r *Repository) totalSessions(ctx context.Context, classID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT date) FROM attendance WHERE class_id = $1 AND is_present
	`, classID).Scan(&n)
	return n, err
}

// Summary returns per-student stats for everyone on the roster, most
// attendance first.
func (r *Repository) Summary(ctx context.Context, classID string) (ClassSummary, error) {
	total, err := r.totalSessions(ctx, classID)
	if err != nil {
		return ClassSummary{}, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, COALESCE(u.phone, ''), COUNT(a.id)
		FROM class_students cs
		JOIN users u ON u.id = cs.student_id
		LEFT JOIN attendance a
			ON a.class_id = cs.class_id AND a.student_id = cs.student_id AND a.is_present
		WHERE cs.class_id = $1
		GROUP BY u.id, u.name, u.email, u.phone
		ORDER BY COUNT(a.id) DESC, u.name
	`, classID)
	if err != nil {
		return ClassSummary{}, err
	}
	defer rows.Close()

	summary := ClassSummary{TotalSessions: total}
	for rows.Next() {
		var ss StudentSummary
		if err := rows.Scan(&ss.StudentID, &ss.StudentName, &ss.StudentEmail, &ss.StudentPhone, &ss.PresentCount); err != nil {
			return ClassSummary{}, err
		}
		ss.TotalSessions = total
		ss.AttendancePercentage = percentage(ss.PresentCount, total)
		summary.Students = append(summary.Students, ss)
	}
	return summary, rows.Err()
}

// StudentSummary returns one student's stats plus their attendance dates.
func (r *Repository) StudentSummary(ctx context.Context, classID, studentID string) (StudentSummary, error) {
	total, err := r.totalSessions(ctx, classID)
	if err != nil {
		return StudentSummary{}, err
	}
	ss := StudentSummary{StudentID: studentID, TotalSessions: total}
	err = r.db.QueryRowContext(ctx, `
		SELECT name, email, COALESCE(phone, '') FROM users WHERE id = $1
	`, studentID).Scan(&ss.StudentName, &ss.StudentEmail, &ss.StudentPhone)
	if err != nil {
		return StudentSummary{}, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT date FROM attendance
		WHERE class_id = $1 AND student_id = $2 AND is_present
		ORDER BY date DESC
	`, classID, studentID)
	if err != nil {
		return StudentSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return StudentSummary{}, err
		}
		ss.Dates = append(ss.Dates, d)
	}
	ss.PresentCount = len(ss.Dates)
	ss.AttendancePercentage = percentage(ss.PresentCount, total)
	return ss, rows.Err()
}

func percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(present)/float64(total)*100*100+0.5)) / 100
}
