package class

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, c Class) (Class, error)
	Get(ctx context.Context, id string) (Class, error)
	List(ctx context.Context) ([]Class, error)
	Update(ctx context.Context, c Class) (Class, error)
	Delete(ctx context.Context, id string) error
	Enroll(ctx context.Context, classID, studentID string) error
	SetLive(ctx context.Context, id string, startedAt time.Time) error
	ClearLive(ctx context.Context, id string) error
}

// Service owns class lifecycle and the live-session flag.
type Service struct {
	store       Store
	roomPrefix  string
	jitsiDomain string
	now         func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, roomPrefix, jitsiDomain string) *Service {
	if roomPrefix == "" {
		roomPrefix = "classhub"
	}
	if jitsiDomain == "" {
		jitsiDomain = "meet.jit.si"
	}
	return &Service{store: store, roomPrefix: roomPrefix, jitsiDomain: jitsiDomain, now: time.Now}
}

// Create registers a class for the teacher and assigns its conferencing room.
func (s *Service) Create(ctx context.Context, teacherID, title, description string, sched Schedule) (Class, error) {
	c := Class{
		Title:       title,
		Description: description,
		TeacherID:   teacherID,
		Schedule:    sched,
	}
	// Room name needs the id, so mint it up front.
	c.ID = newID()
	c.RoomName = RoomName(s.roomPrefix, title, c.ID)
	c.MeetingLink = "https://" + s.jitsiDomain + "/" + c.RoomName
	return s.store.Insert(ctx, c)
}

// Get returns a class with its roster.
func (s *Service) Get(ctx context.Context, id string) (Class, error) {
	return s.store.Get(ctx, id)
}

// List returns all classes.
func (s *Service) List(ctx context.Context) ([]Class, error) {
	return s.store.List(ctx)
}

// Update lets the owning teacher change title, description and schedule.
func (s *Service) Update(ctx context.Context, classID, requesterID string, c Class) (Class, error) {
	existing, err := s.store.Get(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if existing.TeacherID != requesterID {
		return Class{}, ErrPermissionDenied
	}
	c.ID = classID
	return s.store.Update(ctx, c)
}

// Delete removes the class; only the owning teacher may do so.
func (s *Service) Delete(ctx context.Context, classID, requesterID string) error {
	existing, err := s.store.Get(ctx, classID)
	if err != nil {
		return err
	}
	if existing.TeacherID != requesterID {
		return ErrPermissionDenied
	}
	return s.store.Delete(ctx, classID)
}

// Enroll adds a student to the roster.
func (s *Service) Enroll(ctx context.Context, classID, studentID string) error {
	if _, err := s.store.Get(ctx, classID); err != nil {
		return err
	}
	return s.store.Enroll(ctx, classID, studentID)
}

// StartLive opens the live window. Repeat calls while already live are no-ops
// so elapsed-time computations for joined students are not reset.
func (s *Service) StartLive(ctx context.Context, classID, requesterID string) (Class, error) {
	c, err := s.store.Get(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if c.TeacherID != requesterID {
		return Class{}, ErrPermissionDenied
	}
	if c.IsLive {
		return c, nil
	}
	started := s.now()
	if err := s.store.SetLive(ctx, classID, started); err != nil {
		return Class{}, err
	}
	c.IsLive = true
	c.LiveStartedAt = &started
	return c, nil
}

// EndLive closes the live window. Outstanding join tokens are not revoked
// here; they lapse on their own expiry or on the leave path.
func (s *Service) EndLive(ctx context.Context, classID, requesterID string) (Class, error) {
	c, err := s.store.Get(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if c.TeacherID != requesterID {
		return Class{}, ErrPermissionDenied
	}
	if err := s.store.ClearLive(ctx, classID); err != nil {
		return Class{}, err
	}
	c.IsLive = false
	c.LiveStartedAt = nil
	return c, nil
}

// LiveStatus returns the live flag for polling clients.
func (s *Service) LiveStatus(ctx context.Context, classID string) (Class, error) {
	return s.store.Get(ctx, classID)
}
