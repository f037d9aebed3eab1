package class

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors surfaced to handlers.
var (
	ErrNotFound         = errors.New("class not found")
	ErrPermissionDenied = errors.New("not authorized")
)

// Schedule frequencies.
const (
	FrequencyOnce   = "once"
	FrequencyDaily  = "daily"
	FrequencyCustom = "custom"
)

// Schedule describes when a class runs.
type Schedule struct {
	Date       time.Time `json:"date"`
	StartTime  string    `json:"start_time"` // "HH:MM"
	EndTime    string    `json:"end_time"`
	Frequency  string    `json:"frequency"`
	CustomDays []string  `json:"custom_days,omitempty"` // weekday names, frequency=custom
}

// RunsOn reports whether the class has a session on the given day.
func (s Schedule) RunsOn(day time.Time) bool {
	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyCustom:
		name := day.Weekday().String()
		for _, d := range s.CustomDays {
			if strings.EqualFold(d, name) {
				return true
			}
		}
		return false
	default:
		y1, m1, d1 := s.Date.Date()
		y2, m2, d2 := day.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
}

// StartAt returns the session start instant for the given day. For one-off
// classes the scheduled date wins over day.
func (s Schedule) StartAt(day time.Time) (time.Time, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s.StartTime, "%d:%d", &hh, &mm); err != nil {
		return time.Time{}, fmt.Errorf("parse start time %q: %w", s.StartTime, err)
	}
	base := day
	if s.Frequency == "" || s.Frequency == FrequencyOnce {
		if !s.Date.IsZero() {
			base = s.Date
		}
	}
	return time.Date(base.Year(), base.Month(), base.Day(), hh, mm, 0, 0, time.UTC), nil
}

// Class is a course taught by one teacher to enrolled students.
type Class struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	TeacherID     string     `json:"teacher_id"`
	RoomName      string     `json:"room_name"`
	MeetingLink   string     `json:"meeting_link"`
	IsLive        bool       `json:"is_live"`
	LiveStartedAt *time.Time `json:"live_started_at,omitempty"`
	Schedule      Schedule   `json:"schedule"`
	IsActive      bool       `json:"is_active"`
	StudentIDs    []string   `json:"student_ids"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Enrolled reports whether the user is in the class roster.
func (c Class) Enrolled(userID string) bool {
	for _, id := range c.StudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomName builds a stable, URL-safe conferencing room name for a class.
func RoomName(prefix, title, classID string) string {
	slug := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, strings.ToLower(title))
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > 30 {
		slug = strings.Trim(slug[:30], "-")
	}
	id8 := classID
	if len(id8) > 8 {
		id8 = id8[:8]
	}
	return prefix + "-" + slug + "-" + id8
}
