package review

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/civiclens/internal/client"
	"github.com/kdimtricp/civiclens/internal/database"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// mockBackend keeps one decision per event, latest submission wins.
type mockBackend struct {
	mu        sync.Mutex
	decisions map[string]models.ReviewDecision
	sent      []models.ReviewDecision
	err       error
}

func newMockBackend() *mockBackend {
	return &mockBackend{decisions: make(map[string]models.ReviewDecision)}
}

func (m *mockBackend) SubmitReview(ctx context.Context, runID string, d models.ReviewDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, d)
	m.decisions[d.EventID] = d
	return nil
}

type eventSet map[string]bool

func (s eventSet) HasEvent(id string) bool { return s[id] }

func decisionPtr(d models.Decision) *models.Decision { return &d }
func strPtr(s string) *string                        { return &s }
func boolPtr(b bool) *bool                           { return &b }

func TestSubmitDefaultDecision(t *testing.T) {
	backend := newMockBackend()
	s := New(backend, "r1", nil)

	d, err := s.Submit(context.Background(), "e1")
	require.NoError(t, err)

	want := models.ReviewDecision{EventID: "e1", Decision: models.DecisionAccept}
	assert.Equal(t, want, d)
	assert.Equal(t, want, backend.decisions["e1"])
}

func TestStageMergesPartials(t *testing.T) {
	ctx := context.Background()
	s := New(newMockBackend(), "r1", nil)

	_, err := s.Stage(ctx, "e1", models.PartialDecision{ReviewerNotes: strPtr("blurry")})
	require.NoError(t, err)
	d, err := s.Stage(ctx, "e1", models.PartialDecision{Decision: decisionPtr(models.DecisionReject)})
	require.NoError(t, err)

	assert.Equal(t, models.ReviewDecision{
		EventID:       "e1",
		Decision:      models.DecisionReject,
		ReviewerNotes: "blurry",
		IncludePlate:  false,
	}, d)

	other, err := s.Draft(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDecision("e2"), other, "drafts are per event")
}

func TestLastSubmissionWins(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	s := New(backend, "r1", nil)

	_, err := s.Stage(ctx, "e1", models.PartialDecision{Decision: decisionPtr(models.DecisionAccept)})
	require.NoError(t, err)
	_, err = s.Submit(ctx, "e1")
	require.NoError(t, err)

	_, err = s.Stage(ctx, "e1", models.PartialDecision{
		Decision:      decisionPtr(models.DecisionReject),
		ReviewerNotes: strPtr("blurry"),
	})
	require.NoError(t, err)
	_, err = s.Submit(ctx, "e1")
	require.NoError(t, err)

	assert.Len(t, backend.sent, 2)
	assert.Equal(t, models.ReviewDecision{
		EventID:       "e1",
		Decision:      models.DecisionReject,
		ReviewerNotes: "blurry",
	}, backend.decisions["e1"])
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	backend.err = &client.ServerError{Op: "submit review", Status: 404, Detail: "event not found"}
	s := New(backend, "r1", nil)

	_, err := s.Stage(ctx, "e1", models.PartialDecision{IncludePlate: boolPtr(true)})
	require.NoError(t, err)

	_, err = s.Submit(ctx, "e1")
	require.Error(t, err)

	var serverErr *client.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "event not found", client.Message(err))

	d, err := s.Draft(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, d.IncludePlate)

	backend.err = nil
	sent, err := s.Submit(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, sent.IncludePlate)
}

func TestStageRejectsInvalidDecision(t *testing.T) {
	s := New(newMockBackend(), "r1", nil)

	_, err := s.Stage(context.Background(), "e1", models.PartialDecision{Decision: decisionPtr("MAYBE")})
	assert.ErrorIs(t, err, ErrInvalidDecision)

	d, err := s.Draft(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAccept, d.Decision)
}

func TestEventSetGuard(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	s := New(backend, "r1", nil).WithEventSet(eventSet{"e1": true})

	tests := []struct {
		name    string
		eventID string
		wantErr error
	}{
		{"known", "e1", nil},
		{"unknown", "e9", ErrUnknownEvent},
		{"empty", "", ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Submit(ctx, tt.eventID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Len(t, backend.sent, 1)
}

func TestMemoryDraftsScopedByRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDrafts()

	require.NoError(t, store.PutDraft(ctx, "r1", models.ReviewDecision{EventID: "e1", Decision: models.DecisionReject}))

	_, ok, err := store.GetDraft(ctx, "r2", "e1")
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok, err := store.GetDraft(ctx, "r1", "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.DecisionReject, d.Decision)
}

func TestDraftsSurviveAcrossSubmittersWithSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDB(ctx, filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	defer db.Close()

	first := New(newMockBackend(), "r1", database.NewDraftRepo(db))
	_, err = first.Stage(ctx, "e1", models.PartialDecision{ReviewerNotes: strPtr("check plate")})
	require.NoError(t, err)

	backend := newMockBackend()
	second := New(backend, "r1", database.NewDraftRepo(db))
	_, err = second.Stage(ctx, "e1", models.PartialDecision{IncludePlate: boolPtr(true)})
	require.NoError(t, err)
	_, err = second.Submit(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, models.ReviewDecision{
		EventID:       "e1",
		Decision:      models.DecisionAccept,
		ReviewerNotes: "check plate",
		IncludePlate:  true,
	}, backend.decisions["e1"])
}
