package live

import (
	"context"
	"errors"
	"time"

	"classhub/internal/class"
	"classhub/internal/user"
)

// Errors surfaced to handlers. All are user-facing, recoverable conditions.
var (
	ErrClassNotLive  = errors.New("class is not live")
	ErrNotApplicable = errors.New("teachers join directly as moderators without tokens")
	ErrNotEnrolled   = errors.New("not enrolled in this class")
	ErrSessionActive = errors.New("an active session already exists; close the existing meeting window first")
	ErrTokenRequired = errors.New("join token required")
	ErrInvalidToken  = errors.New("invalid join token")
	ErrTokenExpired  = errors.New("join token has expired")
)

// Admission is the per-request entry path, resolved once from the verified
// identity instead of re-deriving teacher/student comparisons per branch.
type Admission int

const (
	GuestAdmission Admission = iota
	ModeratorAdmission
)

// Grant is an issued join token.
type Grant struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// TokenGrant carries the fields written on token issuance.
type TokenGrant struct {
	Token      string
	Expiry     time.Time
	JoinTime   time.Time
	ClassStart *time.Time
}

// JoinStore persists per-(class, student, day) session records. All mutation
// must be atomic at the store; the service never holds locks across calls.
type JoinStore interface {
	// IssueToken upserts the day's record with a fresh token. It returns
	// false without writing when an unexpired token is already outstanding.
	IssueToken(ctx context.Context, classID, studentID string, day time.Time, g TokenGrant) (bool, error)
	// ConsumeToken clears the token on match, failing with ErrInvalidToken
	// or ErrTokenExpired otherwise. active_session stays set.
	ConsumeToken(ctx context.Context, classID, studentID, token string, now time.Time) error
	// ClearSession ends the day's session; clearing a missing record is a no-op.
	ClearSession(ctx context.Context, classID, studentID string, day time.Time) error
}

// ClassDirectory looks up classes with their rosters.
type ClassDirectory interface {
	Get(ctx context.Context, id string) (class.Class, error)
}

// UserDirectory looks up display identities for the conferencing config.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Service decides whether and how a user may enter a class's live room.
type Service struct {
	classes  ClassDirectory
	users    UserDirectory
	store    JoinStore
	tokenTTL time.Duration
	domain   string
	now      func() time.Time
}

// NewService creates the admission service.
func NewService(classes ClassDirectory, users UserDirectory, store JoinStore, tokenTTL time.Duration, jitsiDomain string) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Minute
	}
	if jitsiDomain == "" {
		jitsiDomain = "meet.jit.si"
	}
	return &Service{
		classes:  classes,
		users:    users,
		store:    store,
		tokenTTL: tokenTTL,
		domain:   jitsiDomain,
		now:      time.Now,
	}
}

// resolveAdmission maps the requester onto one of the two entry paths.
func resolveAdmission(c class.Class, requesterID string) (Admission, error) {
	if c.TeacherID == requesterID {
		return ModeratorAdmission, nil
	}
	if c.Enrolled(requesterID) {
		return GuestAdmission, nil
	}
	return GuestAdmission, ErrNotEnrolled
}

// RequestJoinToken issues a single-use token for an enrolled student of a live
// class. At most one unexpired token per (class, student, day) can exist; the
// store's conditional upsert serializes concurrent requests.
func (s *Service) RequestJoinToken(ctx context.Context, classID, requesterID string) (Grant, error) {
	c, err := s.classes.Get(ctx, classID)
	if err != nil {
		return Grant{}, err
	}
	if !c.IsLive {
		return Grant{}, ErrClassNotLive
	}
	admission, err := resolveAdmission(c, requesterID)
	if err != nil {
		return Grant{}, err
	}
	if admission == ModeratorAdmission {
		return Grant{}, ErrNotApplicable
	}

	token, err := NewToken()
	if err != nil {
		return Grant{}, err
	}
	now := s.now()
	ok, err := s.store.IssueToken(ctx, classID, requesterID, dayOf(now), TokenGrant{
		Token:      token,
		Expiry:     now.Add(s.tokenTTL),
		JoinTime:   now,
		ClassStart: c.LiveStartedAt,
	})
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, ErrSessionActive
	}
	return Grant{Token: token, ExpiresIn: int(s.tokenTTL.Seconds())}, nil
}

// JoinConfig returns the conferencing configuration for entering the room.
// The class teacher is admitted as moderator with no token; students must
// present a valid token, which is consumed here (single use). The returned
// config always carries the current isLive flag; callers must not enter the
// room when it is false.
func (s *Service) JoinConfig(ctx context.Context, classID, requesterID, presentedToken string) (EmbedConfig, error) {
	c, err := s.classes.Get(ctx, classID)
	if err != nil {
		return EmbedConfig{}, err
	}
	admission, err := resolveAdmission(c, requesterID)
	if err != nil {
		return EmbedConfig{}, err
	}
	if admission == GuestAdmission {
		if presentedToken == "" {
			return EmbedConfig{}, ErrTokenRequired
		}
		if err := s.store.ConsumeToken(ctx, classID, requesterID, presentedToken, s.now()); err != nil {
			return EmbedConfig{}, err
		}
	}

	u, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return EmbedConfig{}, err
	}
	teacher, err := s.users.GetByID(ctx, c.TeacherID)
	if err != nil {
		return EmbedConfig{}, err
	}

	cfg := NewEmbedConfig(s.domain, c.RoomName, u, admission == ModeratorAdmission)
	cfg.IsLive = c.IsLive
	cfg.MeetingLink = c.MeetingLink
	cfg.ClassName = c.Title
	cfg.TeacherName = teacher.Name
	return cfg, nil
}

// EndSession clears the requester's active session for today. Redundant calls
// and calls with no session record succeed.
func (s *Service) EndSession(ctx context.Context, classID, requesterID string) error {
	if _, err := s.classes.Get(ctx, classID); err != nil {
		return err
	}
	return s.store.ClearSession(ctx, classID, requesterID, dayOf(s.now()))
}

// dayOf truncates an instant to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
