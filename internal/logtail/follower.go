// Package logtail follows the tail of a run's pipeline log.
package logtail

import (
	"context"
	"sync"
	"time"

	"github.com/kdimtricp/civiclens/internal/client"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/kdimtricp/civiclens/internal/poller"
)

const (
	DefaultInterval = 6 * time.Second
	DefaultTail     = 40
)

type LogsFetcher interface {
	Logs(ctx context.Context, runID string, tail int) (*models.LogsPage, error)
}

type Config struct {
	Interval time.Duration
	Tail     int
}

// Follower polls the last Tail lines of a run's log. Every successful
// poll replaces the previous tail; failures are reported and polling
// carries on.
type Follower struct {
	fetcher LogsFetcher
	runID   string
	config  Config
	onError func(error)
	loop    *poller.Loop

	mu    sync.RWMutex
	lines []models.LogLine
	err   error
	polls int
}

func New(fetcher LogsFetcher, runID string, config Config, onError func(error)) *Follower {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Tail <= 0 {
		config.Tail = DefaultTail
	}
	config.Tail = client.ClampTail(config.Tail)
	if onError == nil {
		onError = func(error) {}
	}
	f := &Follower{
		fetcher: fetcher,
		runID:   runID,
		config:  config,
		onError: onError,
	}
	f.loop = poller.New("logs "+runID, f.Tick)
	return f
}

func (f *Follower) Start(ctx context.Context) {
	f.loop.Start(ctx)
}

func (f *Follower) Stop() {
	f.loop.Stop()
}

func (f *Follower) Done() <-chan struct{} {
	return f.loop.Done()
}

func (f *Follower) Tail() int {
	return f.config.Tail
}

func (f *Follower) Tick(ctx context.Context) (time.Duration, bool) {
	if f.loop.Stopped() {
		return 0, false
	}

	page, err := f.fetcher.Logs(ctx, f.runID, f.config.Tail)

	if f.loop.Stopped() {
		return 0, false
	}

	f.mu.Lock()
	if err != nil {
		f.err = err
	} else {
		f.lines = page.Lines
		f.polls++
	}
	f.mu.Unlock()

	if err != nil {
		monitoring.Logf("[LOGTAIL] Fetching logs for %s failed: %v", f.runID, err)
		f.onError(err)
	}

	return f.config.Interval, true
}

// Lines returns the most recently fetched tail in log order.
func (f *Follower) Lines() []models.LogLine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.LogLine, len(f.lines))
	copy(out, f.lines)
	return out
}

func (f *Follower) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

func (f *Follower) Polls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.polls
}
