package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/class"
)

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

// mockStore mirrors the repository's mark-once semantics.
type mockStore struct {
	marked map[string]Record
}

func newMockStore() *mockStore {
	return &mockStore{marked: make(map[string]Record)}
}

func (m *mockStore) MarkPresent(_ context.Context, classID, studentID string, day, joinTime, classStart, markedAt time.Time) (Record, error) {
	k := classID + "|" + studentID + "|" + day.Format("2006-01-02")
	if existing, ok := m.marked[k]; ok && existing.IsPresent {
		return Record{}, ErrAlreadyMarked
	}
	rec := Record{
		ID:             k,
		ClassID:        classID,
		StudentID:      studentID,
		Date:           day,
		JoinTime:       &joinTime,
		ClassStartTime: &classStart,
		IsPresent:      true,
		MarkedAt:       &markedAt,
	}
	m.marked[k] = rec
	return rec, nil
}

func (m *mockStore) ListByClass(context.Context, string) ([]ClassRecord, error) {
	return nil, nil
}
func (m *mockStore) Summary(context.Context, string) (ClassSummary, error) {
	return ClassSummary{}, nil
}
func (m *mockStore) StudentSummary(context.Context, string, string) (StudentSummary, error) {
	return StudentSummary{}, nil
}

func newTestService(t *testing.T) (*Service, *mockStore) {
	t.Helper()
	classes := &mockClasses{classes: map[string]class.Class{
		"class-1": {
			ID:        "class-1",
			TeacherID: "teacher-1",
			Schedule: class.Schedule{
				Frequency: class.FrequencyDaily,
				StartTime: "10:00",
			},
		},
	}}
	store := newMockStore()
	return NewService(classes, store, 5*time.Minute), store
}

func TestMarkTooEarly(t *testing.T) {
	svc, _ := newTestService(t)
	joined := time.Date(2025, 3, 10, 10, 4, 59, 0, time.UTC)
	_, err := svc.Mark(context.Background(), "class-1", "student-1", joined)
	assert.ErrorIs(t, err, ErrTooEarly)
}

func TestMarkAtExactThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	joined := time.Date(2025, 3, 10, 10, 5, 0, 0, time.UTC)
	rec, err := svc.Mark(context.Background(), "class-1", "student-1", joined)
	require.NoError(t, err)
	assert.True(t, rec.IsPresent)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), *rec.ClassStartTime)
}

func TestMarkTwiceSameDay(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Mark(context.Background(), "class-1", "student-1", time.Date(2025, 3, 10, 10, 6, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), "class-1", "student-1", time.Date(2025, 3, 10, 10, 7, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrAlreadyMarked)
}

func TestMarkNextDayAllowed(t *testing.T) {
	svc, store := newTestService(t)
	_, err := svc.Mark(context.Background(), "class-1", "student-1", time.Date(2025, 3, 10, 10, 6, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = svc.Mark(context.Background(), "class-1", "student-1", time.Date(2025, 3, 11, 10, 6, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, store.marked, 2)
}

func TestMarkMissingClass(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Mark(context.Background(), "nope", "student-1", time.Now())
	assert.ErrorIs(t, err, class.ErrNotFound)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, percentage(3, 0))
	assert.Equal(t, 50.0, percentage(1, 2))
	assert.Equal(t, 66.67, percentage(2, 3))
}
