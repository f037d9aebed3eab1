package attendance

import (
	"context"
	"errors"
	"time"

	"classhub/internal/class"
)

// Errors surfaced to handlers.
var (
	ErrTooEarly      = errors.New("class not started yet or too early to mark attendance")
	ErrAlreadyMarked = errors.New("attendance already marked for today")
)

// Record is one (class, student, calendar day) attendance row.
type Record struct {
	ID             string     `json:"id"`
	ClassID        string     `json:"class_id"`
	StudentID      string     `json:"student_id"`
	Date           time.Time  `json:"date"`
	JoinTime       *time.Time `json:"join_time,omitempty"`
	ClassStartTime *time.Time `json:"class_start_time,omitempty"`
	IsPresent      bool       `json:"is_present"`
	MarkedAt       *time.Time `json:"marked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ClassDirectory looks up the class schedule.
type ClassDirectory interface {
	Get(ctx context.Context, id string) (class.Class, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	MarkPresent(ctx context.Context, classID, studentID string, day, joinTime, classStart, markedAt time.Time) (Record, error)
	ListByClass(ctx context.Context, classID string) ([]ClassRecord, error)
	Summary(ctx context.Context, classID string) (ClassSummary, error)
	StudentSummary(ctx context.Context, classID, studentID string) (StudentSummary, error)
}

// Service derives durable presence records from join events. It is
// independent of the join-token mechanism, so presence survives token
// consumption and expiry.
type Service struct {
	classes  ClassDirectory
	repo     Store
	minDelay time.Duration
	now      func() time.Time
}

// NewService creates a service backed by a store.
func NewService(classes ClassDirectory, repo Store, minDelay time.Duration) *Service {
	if minDelay <= 0 {
		minDelay = 5 * time.Minute
	}
	return &Service{classes: classes, repo: repo, minDelay: minDelay, now: time.Now}
}

// Mark records presence for a student who joined at joinTime. The student
// must have dwelled past the class start by the minimum delay, and at most
// one presence record exists per (class, student, day); the repository's
// conditional upsert rejects the second writer.
func (s *Service) Mark(ctx context.Context, classID, studentID string, joinTime time.Time) (Record, error) {
	c, err := s.classes.Get(ctx, classID)
	if err != nil {
		return Record{}, err
	}
	start, err := c.Schedule.StartAt(joinTime)
	if err != nil {
		return Record{}, err
	}
	if joinTime.Sub(start) < s.minDelay {
		return Record{}, ErrTooEarly
	}
	return s.repo.MarkPresent(ctx, classID, studentID, dayOf(joinTime), joinTime, start, s.now())
}

// ListByClass returns all presence records for a class with student details.
func (s *Service) ListByClass(ctx context.Context, classID string) ([]ClassRecord, error) {
	return s.repo.ListByClass(ctx, classID)
}

// Summary returns per-student presence stats for a class.
func (s *Service) Summary(ctx context.Context, classID string) (ClassSummary, error) {
	return s.repo.Summary(ctx, classID)
}

// StudentSummary returns one student's presence stats for a class.
func (s *Service) StudentSummary(ctx context.Context, classID, studentID string) (StudentSummary, error) {
	return s.repo.StudentSummary(ctx, classID, studentID)
}

// dayOf truncates an instant to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
