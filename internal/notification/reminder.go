package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"classhub/internal/class"
	"classhub/internal/queue"
)

// Window is a reminder slot relative to class start.
type Window struct {
	Name          string
	MinutesBefore int
}

// Windows are checked once a minute; the ±1 minute tolerance keeps a slow
// tick from skipping a slot.
var Windows = []Window{
	{Name: "30min", MinutesBefore: 30},
	{Name: "15min", MinutesBefore: 15},
}

// Reminder is one (class, window) pair due for dispatch.
type Reminder struct {
	Class   class.Class
	Window  Window
	StartAt time.Time
}

// ReminderJob is the queue payload handed to downstream delivery.
type ReminderJob struct {
	ClassID string    `json:"class_id"`
	Title   string    `json:"title"`
	Window  string    `json:"window"`
	StartAt time.Time `json:"start_at"`
}

// ClassLister returns active classes with their rosters.
type ClassLister interface {
	ListActive(ctx context.Context) ([]class.Class, error)
}

// ReminderStore is the persistence surface dispatch needs.
type ReminderStore interface {
	WasSent(ctx context.Context, classID string, day time.Time, window string) (bool, error)
	MarkSent(ctx context.Context, classID string, day time.Time, window string) (bool, error)
	Create(ctx context.Context, n Notification) (Notification, error)
}

// Service answers "what reminders are due right now" and dispatches them.
// It holds no timers of its own; an external scheduled job drives it.
type Service struct {
	classes ClassLister
	repo    ReminderStore
	queue   queue.Queue
	log     *zap.Logger
}

// NewService creates the reminder service.
func NewService(classes ClassLister, repo ReminderStore, q queue.Queue, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{classes: classes, repo: repo, queue: q, log: log}
}

// Due returns the reminders due at instant now. It reads but never writes,
// so callers may invoke it speculatively.
func (s *Service) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	classes, err := s.classes.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	day := now.UTC().Truncate(24 * time.Hour)

	var due []Reminder
	for _, c := range classes {
		if c.Schedule.StartTime == "" || !c.Schedule.RunsOn(now) {
			continue
		}
		start, err := c.Schedule.StartAt(now)
		if err != nil {
			s.log.Warn("bad class schedule", zap.String("class_id", c.ID), zap.Error(err))
			continue
		}
		minutes := int(start.Sub(now) / time.Minute)
		for _, w := range Windows {
			if minutes < w.MinutesBefore-1 || minutes > w.MinutesBefore+1 {
				continue
			}
			sent, err := s.repo.WasSent(ctx, c.ID, day, w.Name)
			if err != nil {
				return nil, err
			}
			if sent {
				continue
			}
			due = append(due, Reminder{Class: c, Window: w, StartAt: start})
		}
	}
	return due, nil
}

// DispatchDue sends every due reminder: records the send, creates a
// notification for the teacher and each enrolled student, and enqueues a
// delivery job. Returns how many reminders went out.
func (s *Service) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	day := now.UTC().Truncate(24 * time.Hour)

	dispatched := 0
	for _, rem := range due {
		sent, err := s.repo.MarkSent(ctx, rem.Class.ID, day, rem.Window.Name)
		if err != nil {
			return dispatched, err
		}
		if !sent {
			// Another worker instance won the insert.
			continue
		}

		message := fmt.Sprintf("Your class %q starts in %d minutes", rem.Class.Title, rem.Window.MinutesBefore)
		recipients := append([]string{rem.Class.TeacherID}, rem.Class.StudentIDs...)
		for _, userID := range recipients {
			if _, err := s.repo.Create(ctx, Notification{
				UserID:  userID,
				ClassID: rem.Class.ID,
				Kind:    "class_reminder",
				Message: message,
			}); err != nil {
				s.log.Error("create notification failed",
					zap.String("class_id", rem.Class.ID), zap.String("user_id", userID), zap.Error(err))
			}
		}

		body, _ := json.Marshal(ReminderJob{
			ClassID: rem.Class.ID,
			Title:   rem.Class.Title,
			Window:  rem.Window.Name,
			StartAt: rem.StartAt,
		})
		if err := s.queue.Publish(ctx, queue.Message{Type: "reminder", Body: body}); err != nil {
			s.log.Error("queue publish failed", zap.String("class_id", rem.Class.ID), zap.Error(err))
		}

		s.log.Info("reminder dispatched",
			zap.String("class_id", rem.Class.ID),
			zap.String("window", rem.Window.Name),
			zap.Int("recipients", len(recipients)))
		dispatched++
	}
	return dispatched, nil
}
