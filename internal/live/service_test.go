package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/class"
	"classhub/internal/user"
)

// mockClasses serves a fixed set of classes.
type mockClasses struct {
	classes map[string]class.Class
}

func (m *mockClasses) Get(_ context.Context, id string) (class.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	return c, nil
}

// mockUsers serves a fixed set of users.
type mockUsers struct {
	users map[string]user.User
}

func (m *mockUsers) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type joinRecord struct {
	activeSession bool
	token         string
	tokenExpiry   time.Time
	hasToken      bool
}

// mockJoinStore mirrors the conditional-upsert semantics of the SQL store.
type mockJoinStore struct {
	mu      sync.Mutex
	records map[string]*joinRecord
}

func newMockJoinStore() *mockJoinStore {
	return &mockJoinStore{records: make(map[string]*joinRecord)}
}

func key(classID, studentID string, day time.Time) string {
	return classID + "|" + studentID + "|" + day.Format("2006-01-02")
}

func (m *mockJoinStore) IssueToken(_ context.Context, classID, studentID string, day time.Time, g TokenGrant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(classID, studentID, day)
	if rec, ok := m.records[k]; ok {
		if rec.activeSession && rec.hasToken && rec.tokenExpiry.After(g.JoinTime) {
			return false, nil
		}
	}
	m.records[k] = &joinRecord{
		activeSession: true,
		token:         g.Token,
		tokenExpiry:   g.Expiry,
		hasToken:      true,
	}
	return true, nil
}

func (m *mockJoinStore) ConsumeToken(_ context.Context, classID, studentID, token string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if !rec.hasToken || rec.token != token {
			continue
		}
		if !rec.tokenExpiry.After(now) {
			return ErrTokenExpired
		}
		rec.hasToken = false
		rec.token = ""
		return nil
	}
	return ErrInvalidToken
}

func (m *mockJoinStore) ClearSession(_ context.Context, classID, studentID string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key(classID, studentID, day)]; ok {
		rec.activeSession = false
		rec.hasToken = false
		rec.token = ""
	}
	return nil
}

const (
	teacherID  = "teacher-1"
	studentID  = "student-1"
	outsiderID = "outsider-1"
	classID    = "class-1"
)

func testService(t *testing.T, isLive bool) (*Service, *mockJoinStore, *time.Time) {
	t.Helper()
	started := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	cls := class.Class{
		ID:          classID,
		Title:       "Physics Batch A",
		TeacherID:   teacherID,
		RoomName:    "classhub-physics-batch-a-abcd1234",
		MeetingLink: "https://meet.jit.si/classhub-physics-batch-a-abcd1234",
		IsLive:      isLive,
		StudentIDs:  []string{studentID},
	}
	if isLive {
		cls.LiveStartedAt = &started
	}
	classes := &mockClasses{classes: map[string]class.Class{classID: cls}}
	users := &mockUsers{users: map[string]user.User{
		teacherID: {ID: teacherID, Name: "Ms. Rao", Email: "rao@example.com"},
		studentID: {ID: studentID, Name: "Asha", Email: "asha@example.com"},
	}}
	store := newMockJoinStore()
	svc := NewService(classes, users, store, 2*time.Minute, "meet.jit.si")
	now := started.Add(time.Minute)
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func TestRequestJoinTokenClassNotLive(t *testing.T) {
	svc, _, _ := testService(t, false)
	_, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	assert.ErrorIs(t, err, ErrClassNotLive)
}

func TestRequestJoinTokenTeacherNotApplicable(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.RequestJoinToken(context.Background(), classID, teacherID)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestRequestJoinTokenNotEnrolled(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.RequestJoinToken(context.Background(), classID, outsiderID)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestRequestJoinTokenMissingClass(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.RequestJoinToken(context.Background(), "nope", studentID)
	assert.ErrorIs(t, err, class.ErrNotFound)
}

func TestRequestJoinTokenIssuesOpaqueToken(t *testing.T) {
	svc, _, _ := testService(t, true)
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)
	assert.Len(t, grant.Token, 64) // 32 random bytes, hex encoded
	assert.Equal(t, 120, grant.ExpiresIn)
}

func TestRequestJoinTokenSecondRequestBlocked(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	_, err = svc.RequestJoinToken(context.Background(), classID, studentID)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestRequestJoinTokenAfterExpiryReissues(t *testing.T) {
	svc, _, now := testService(t, true)
	_, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	*now = now.Add(121 * time.Second)
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Token)
}

func TestJoinConfigTokenSingleUse(t *testing.T) {
	svc, _, _ := testService(t, true)
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	cfg, err := svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	require.NoError(t, err)
	assert.False(t, cfg.IsModerator)
	assert.True(t, cfg.IsLive)
	assert.Equal(t, "Asha", cfg.UserInfo.DisplayName)
	assert.Equal(t, "Physics Batch A", cfg.ClassName)
	assert.Equal(t, "Ms. Rao", cfg.TeacherName)

	_, err = svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinConfigTokenExpiryBoundary(t *testing.T) {
	svc, _, now := testService(t, true)
	issued := *now
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	// Valid just before the TTL elapses.
	*now = issued.Add(119 * time.Second)
	_, err = svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	require.NoError(t, err)

	// A fresh token left past its TTL is rejected.
	*now = issued.Add(121 * time.Second)
	grant2, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)
	*now = now.Add(121 * time.Second)
	_, err = svc.JoinConfig(context.Background(), classID, studentID, grant2.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJoinConfigTokenRequiredForStudents(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.JoinConfig(context.Background(), classID, studentID, "")
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestJoinConfigNotEnrolled(t *testing.T) {
	svc, _, _ := testService(t, true)
	_, err := svc.JoinConfig(context.Background(), classID, outsiderID, "whatever")
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestJoinConfigTeacherNeedsNoToken(t *testing.T) {
	svc, _, _ := testService(t, true)
	cfg, err := svc.JoinConfig(context.Background(), classID, teacherID, "")
	require.NoError(t, err)
	assert.True(t, cfg.IsModerator)
	assert.True(t, cfg.IsLive)
	assert.Equal(t, "Ms. Rao", cfg.UserInfo.DisplayName)
}

func TestJoinConfigTeacherWhileNotLive(t *testing.T) {
	// Moderator config is still returned, but carries isLive=false so the
	// client knows not to enter the room.
	svc, _, _ := testService(t, false)
	cfg, err := svc.JoinConfig(context.Background(), classID, teacherID, "")
	require.NoError(t, err)
	assert.True(t, cfg.IsModerator)
	assert.False(t, cfg.IsLive)
}

func TestEndSessionIdempotent(t *testing.T) {
	svc, _, _ := testService(t, true)
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(context.Background(), classID, studentID))
	// Redundant clears and clears without a record succeed.
	require.NoError(t, svc.EndSession(context.Background(), classID, studentID))
	require.NoError(t, svc.EndSession(context.Background(), classID, outsiderID))

	// The cleared token is gone for good.
	_, err = svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// And a new token can be requested immediately.
	_, err = svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)
}

func TestEndSessionMissingClass(t *testing.T) {
	svc, _, _ := testService(t, true)
	err := svc.EndSession(context.Background(), "nope", studentID)
	assert.ErrorIs(t, err, class.ErrNotFound)
}

func TestJoinFlowScenario(t *testing.T) {
	// Class live since 10:00. Student requests a token at 10:01, exchanges it
	// at 10:02, and a replay of the consumed token fails.
	svc, _, now := testService(t, true)

	*now = time.Date(2025, 3, 10, 10, 1, 0, 0, time.UTC)
	grant, err := svc.RequestJoinToken(context.Background(), classID, studentID)
	require.NoError(t, err)

	*now = time.Date(2025, 3, 10, 10, 2, 0, 0, time.UTC)
	cfg, err := svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	require.NoError(t, err)
	assert.Equal(t, "classhub-physics-batch-a-abcd1234", cfg.RoomName)
	assert.Equal(t, "meet.jit.si", cfg.Domain)

	_, err = svc.JoinConfig(context.Background(), classID, studentID, grant.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenEntropy(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		require.Len(t, tok, 64)
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}
