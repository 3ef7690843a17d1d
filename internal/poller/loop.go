// Package poller runs self-throttling polling loops.
//
// A Loop calls its tick function, waits for the delay the tick returned,
// and repeats. The next tick is only scheduled after the current one has
// returned, so a loop never has more than one poll in flight.
//
// Stop does not cancel a tick that is already running. Tick functions
// check Stopped before applying what they fetched and drop the result
// if the loop was stopped meanwhile.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/kdimtricp/civiclens/internal/monitoring"
)

type State int

const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TickFunc performs one poll. It returns the delay before the next poll
// and false when the loop should not be rescheduled.
type TickFunc func(ctx context.Context) (next time.Duration, more bool)

type Loop struct {
	name string
	tick TickFunc

	mu      sync.Mutex
	state   State
	stopped bool
	started bool
	timer   *time.Timer
	ticks   int

	stopCh chan struct{}
	done   chan struct{}
}

func New(name string, tick TickFunc) *Loop {
	return &Loop{
		name:   name,
		tick:   tick,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine, polling immediately. Calling
// Start more than once, or after Stop, has no effect.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Run polls on the calling goroutine until the loop stops.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.Stop()

	for {
		if !l.transition(Polling) {
			return
		}

		next, more := l.tick(ctx)

		l.mu.Lock()
		l.ticks++
		l.mu.Unlock()

		if !more {
			monitoring.Logf("[POLL] %s loop finished", l.name)
			return
		}

		timer, ok := l.schedule(next)
		if !ok {
			return
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-l.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// transition moves to s unless the loop has been stopped.
func (l *Loop) transition(s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.state = s
	return true
}

func (l *Loop) schedule(d time.Duration) (*time.Timer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return nil, false
	}
	if d < 0 {
		d = 0
	}
	l.state = Idle
	l.timer = time.NewTimer(d)
	return l.timer, true
}

// Stop prevents any further polls. It is safe to call more than once and
// from within a tick.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.state = Stopped
	if l.timer != nil {
		l.timer.Stop()
	}
	close(l.stopCh)
	if !l.started {
		close(l.done)
	}
}

func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Ticks returns how many polls have completed.
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Done is closed once the loop has fully exited, or on Stop if it
// never started.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Name() string {
	return l.name
}
