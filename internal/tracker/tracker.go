// Package tracker follows a run's lifecycle until it becomes reviewable.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/kdimtricp/civiclens/internal/poller"
)

const (
	DefaultActiveInterval  = 2 * time.Second
	DefaultSettledInterval = 5 * time.Second
)

type StatusFetcher interface {
	Status(ctx context.Context, runID string) (*models.RunStatus, error)
}

type Config struct {
	ActiveInterval  time.Duration
	SettledInterval time.Duration
	// FollowAfterReady keeps polling at SettledInterval after the ready
	// signal until the run is exported or fails.
	FollowAfterReady bool
}

// RunFailedError is reported when the backend marks the run FAILED.
type RunFailedError struct {
	RunID   string
	Stage   models.Stage
	Message string
}

func (e *RunFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "processing failed"
	}
	if e.Stage != "" {
		return fmt.Sprintf("run %s failed at %s: %s", e.RunID, e.Stage, msg)
	}
	return fmt.Sprintf("run %s failed: %s", e.RunID, msg)
}

// Tracker polls run status. It calls onReady at most once, the first time
// the run is READY_FOR_REVIEW or EXPORTED. Any fetch error, or the run
// reaching FAILED, is reported through onError and ends the loop; there is
// no retry.
type Tracker struct {
	fetcher StatusFetcher
	runID   string
	config  Config
	onReady func(*models.RunStatus)
	onError func(error)
	loop    *poller.Loop

	mu         sync.Mutex
	last       *models.RunStatus
	err        error
	readyFired bool
	polls      int
}

func New(fetcher StatusFetcher, runID string, config Config, onReady func(*models.RunStatus), onError func(error)) *Tracker {
	if config.ActiveInterval <= 0 {
		config.ActiveInterval = DefaultActiveInterval
	}
	if config.SettledInterval <= 0 {
		config.SettledInterval = DefaultSettledInterval
	}
	if onReady == nil {
		onReady = func(*models.RunStatus) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	t := &Tracker{
		fetcher: fetcher,
		runID:   runID,
		config:  config,
		onReady: onReady,
		onError: onError,
	}
	t.loop = poller.New("status "+runID, t.Tick)
	return t
}

func (t *Tracker) Start(ctx context.Context) {
	monitoring.Logf("[TRACKER] Tracking run %s", t.runID)
	t.loop.Start(ctx)
}

func (t *Tracker) Stop() {
	t.loop.Stop()
}

func (t *Tracker) Done() <-chan struct{} {
	return t.loop.Done()
}

func (t *Tracker) Stopped() bool {
	return t.loop.Stopped()
}

// Tick fetches status once and decides whether and when to poll again.
func (t *Tracker) Tick(ctx context.Context) (time.Duration, bool) {
	if t.loop.Stopped() {
		return 0, false
	}

	status, err := t.fetcher.Status(ctx, t.runID)

	if t.loop.Stopped() {
		monitoring.Logf("[TRACKER] Discarding status for %s: tracker stopped", t.runID)
		return 0, false
	}

	if err != nil {
		monitoring.Logf("[TRACKER] Status fetch for %s failed, giving up: %v", t.runID, err)
		t.fail(err)
		return 0, false
	}

	t.mu.Lock()
	t.last = status
	t.polls++
	fire := status.State.Reviewable() && !t.readyFired
	if fire {
		t.readyFired = true
	}
	t.mu.Unlock()

	monitoring.Logf("[TRACKER] Run %s: %s / %s (%d%%)", t.runID, status.State, status.Stage, status.ProgressPct)

	if fire {
		monitoring.Logf("[TRACKER] Run %s is ready for review", t.runID)
		t.onReady(status)
		if !t.config.FollowAfterReady {
			return 0, false
		}
	}

	switch {
	case status.State == models.StateFailed:
		t.fail(&RunFailedError{RunID: t.runID, Stage: status.FailedStage, Message: status.ErrorMessage})
		return 0, false
	case status.State.Terminal():
		return 0, false
	}

	return t.interval(status.State), true
}

func (t *Tracker) interval(s models.RunState) time.Duration {
	if models.DescribeState(s).Cadence == models.CadenceSettled {
		return t.config.SettledInterval
	}
	return t.config.ActiveInterval
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.onError(err)
}

// Last returns the most recent status snapshot, or nil before the first
// successful poll.
func (t *Tracker) Last() *models.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Polls returns the number of successful status fetches.
func (t *Tracker) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

func (t *Tracker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyFired
}

// Summary derives the status screen counters from the latest snapshot.
func (t *Tracker) Summary() models.RunSummary {
	return t.Last().Summary()
}
