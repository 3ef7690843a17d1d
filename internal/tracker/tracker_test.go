package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

type step struct {
	status *models.RunStatus
	err    error
}

type mockStatusFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
	hook  func(call int)
}

func (m *mockStatusFetcher) Status(ctx context.Context, runID string) (*models.RunStatus, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(idx)
	}
	if idx >= len(m.steps) {
		idx = len(m.steps) - 1
	}
	s := m.steps[idx]
	return s.status, s.err
}

func (m *mockStatusFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func st(state models.RunState, pct int) step {
	return step{status: &models.RunStatus{RunID: "r1", State: state, ProgressPct: pct}}
}

var fast = Config{ActiveInterval: time.Millisecond, SettledInterval: 2 * time.Millisecond}

func TestTrackerReadyFiresOnceAfterProgress(t *testing.T) {
	fetcher := &mockStatusFetcher{steps: []step{
		st(models.StatePending, 0),
		st(models.StateRunning, 40),
		st(models.StateRunning, 90),
		st(models.StateReadyForReview, 100),
	}}

	var readyCalls int
	var readyAtFetch int
	tr := New(fetcher, "r1", fast, func(s *models.RunStatus) {
		readyCalls++
		readyAtFetch = fetcher.Calls()
	}, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})

	tr.Start(context.Background())
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("tracker did not stop after ready")
	}

	assert.Equal(t, 1, readyCalls)
	// Initial fetch plus three rescheduled polls; ready arrives on the third re-poll.
	assert.Equal(t, 4, readyAtFetch)
	assert.Equal(t, 4, fetcher.Calls())
	assert.Equal(t, models.StateReadyForReview, tr.Last().State)
	assert.NoError(t, tr.Err())
}

func TestTrackerTickIntervals(t *testing.T) {
	tests := []struct {
		name     string
		state    models.RunState
		wantNext time.Duration
		wantMore bool
	}{
		{"pending polls fast", models.StatePending, 10 * time.Millisecond, true},
		{"running polls fast", models.StateRunning, 10 * time.Millisecond, true},
		{"unknown state polls fast", "PAUSED", 10 * time.Millisecond, true},
		{"ready stops", models.StateReadyForReview, 0, false},
		{"exported stops", models.StateExported, 0, false},
		{"failed stops", models.StateFailed, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &mockStatusFetcher{steps: []step{st(tt.state, 0)}}
			tr := New(fetcher, "r1", Config{ActiveInterval: 10 * time.Millisecond, SettledInterval: 50 * time.Millisecond}, nil, nil)
			next, more := tr.Tick(context.Background())
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantMore, more)
		})
	}
}

func TestTrackerFollowAfterReady(t *testing.T) {
	fetcher := &mockStatusFetcher{steps: []step{
		st(models.StateReadyForReview, 100),
		st(models.StateReadyForReview, 100),
		st(models.StateExported, 100),
	}}

	var readyCalls int
	tr := New(fetcher, "r1", Config{ActiveInterval: time.Second, SettledInterval: 3 * time.Second, FollowAfterReady: true},
		func(*models.RunStatus) { readyCalls++ }, nil)

	next, more := tr.Tick(context.Background())
	assert.True(t, more)
	assert.Equal(t, 3*time.Second, next)

	_, more = tr.Tick(context.Background())
	assert.True(t, more)

	_, more = tr.Tick(context.Background())
	assert.False(t, more)

	assert.Equal(t, 1, readyCalls)
	assert.Equal(t, models.StateExported, tr.Last().State)
}

func TestTrackerFailedRunIsFatal(t *testing.T) {
	fetcher := &mockStatusFetcher{steps: []step{
		st(models.StateRunning, 20),
		{status: &models.RunStatus{RunID: "r1", State: models.StateFailed, FailedStage: models.StageGeminiPro, ErrorMessage: "quota exhausted"}},
		st(models.StateRunning, 30),
	}}

	var gotErr error
	var readyCalls int
	tr := New(fetcher, "r1", fast, func(*models.RunStatus) { readyCalls++ }, func(err error) { gotErr = err })

	tr.Start(context.Background())
	<-tr.Done()

	require.Error(t, gotErr)
	var rf *RunFailedError
	require.True(t, errors.As(gotErr, &rf))
	assert.Equal(t, "quota exhausted", rf.Message)
	assert.Contains(t, gotErr.Error(), "GEMINI_PRO")
	assert.Equal(t, 2, fetcher.Calls())
	assert.Equal(t, 0, readyCalls)
}

func TestTrackerFetchErrorFailsFast(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &mockStatusFetcher{steps: []step{
		st(models.StateRunning, 10),
		{err: boom},
		st(models.StateReadyForReview, 100),
	}}

	var errs []error
	tr := New(fetcher, "r1", fast, func(*models.RunStatus) {
		t.Error("ready must not fire after a fetch failure")
	}, func(err error) { errs = append(errs, err) })

	tr.Start(context.Background())
	<-tr.Done()

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, 2, fetcher.Calls())
	assert.Equal(t, models.StateRunning, tr.Last().State)
}

func TestTrackerDiscardsResultAfterStop(t *testing.T) {
	fetcher := &mockStatusFetcher{steps: []step{st(models.StateReadyForReview, 100)}}
	var tr *Tracker
	fetcher.hook = func(int) { tr.Stop() }

	tr = New(fetcher, "r1", fast, func(*models.RunStatus) {
		t.Error("ready must not fire for a result that arrived after stop")
	}, nil)

	next, more := tr.Tick(context.Background())
	assert.False(t, more)
	assert.Zero(t, next)
	assert.Nil(t, tr.Last())
	assert.False(t, tr.Ready())
}

func TestTrackerStopBeforeTick(t *testing.T) {
	fetcher := &mockStatusFetcher{steps: []step{st(models.StateRunning, 0)}}
	tr := New(fetcher, "r1", fast, nil, nil)
	tr.Stop()

	_, more := tr.Tick(context.Background())
	assert.False(t, more)
	assert.Equal(t, 0, fetcher.Calls())

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed for a tracker stopped before it started")
	}
}
