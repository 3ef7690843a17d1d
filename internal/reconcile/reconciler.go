// Package reconcile merges provisional packet traces with finalized
// incident records into the view a reviewer works from.
package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/kdimtricp/civiclens/internal/poller"
)

const (
	DefaultActiveInterval  = 2 * time.Second
	DefaultSettledInterval = 5 * time.Second
)

type Fetcher interface {
	Status(ctx context.Context, runID string) (*models.RunStatus, error)
	Events(ctx context.Context, runID string) (*models.EventsPage, error)
	Trace(ctx context.Context, runID string) (*models.TracePage, error)
}

type Config struct {
	ActiveInterval  time.Duration
	SettledInterval time.Duration
}

// View is an immutable snapshot of the reconciled state.
type View struct {
	Status          *models.RunStatus
	SortedEvents    []models.Event
	TraceByPacketID map[string]models.Packet
	LivePackets     []models.Packet
	TraceSummary    *models.TraceSummary
	Provisional     bool
	Err             error
	Ticks           int
}

func (v View) UncertainCount() int {
	return CountUncertain(v.SortedEvents)
}

// Loading is true until anything at all has been fetched or failed.
func (v View) Loading() bool {
	return v.Status == nil && v.Err == nil && len(v.SortedEvents) == 0 && len(v.LivePackets) == 0
}

// AwaitingFinalEvents is true when only live packets are available. Those
// packets are still part of the view.
func (v View) AwaitingFinalEvents() bool {
	return len(v.SortedEvents) == 0 && len(v.LivePackets) > 0
}

// Settled reports whether polling has dropped to the slow cadence.
func (v View) Settled() bool {
	return v.Status != nil && v.Status.State.Settled()
}

func (v View) ExportAllowed() bool {
	return v.Status != nil && v.Status.State.Reviewable()
}

func (v View) HasEvent(eventID string) bool {
	for _, e := range v.SortedEvents {
		if e.EventID == eventID {
			return true
		}
	}
	return false
}

// Reconciler polls status, events and trace together. Each of the three
// results is applied on its own, so one failing fetch does not hold back
// the other two.
type Reconciler struct {
	fetcher Fetcher
	runID   string
	config  Config
	onError func(error)
	loop    *poller.Loop

	mu                sync.RWMutex
	status            *models.RunStatus
	events            []models.Event
	packets           []models.Packet
	traceSummary      *models.TraceSummary
	eventsProvisional bool
	traceProvisional  bool
	err               error
	ticks             int
}

func New(fetcher Fetcher, runID string, config Config, onError func(error)) *Reconciler {
	if config.ActiveInterval <= 0 {
		config.ActiveInterval = DefaultActiveInterval
	}
	if config.SettledInterval <= 0 {
		config.SettledInterval = DefaultSettledInterval
	}
	if onError == nil {
		onError = func(error) {}
	}
	r := &Reconciler{
		fetcher:           fetcher,
		runID:             runID,
		config:            config,
		onError:           onError,
		eventsProvisional: true,
		traceProvisional:  true,
	}
	r.loop = poller.New("reconcile "+runID, r.Tick)
	return r
}

func (r *Reconciler) Start(ctx context.Context) {
	monitoring.Logf("[RECONCILE] Reconciling evidence for run %s", r.runID)
	r.loop.Start(ctx)
}

func (r *Reconciler) Stop() {
	r.loop.Stop()
}

func (r *Reconciler) Done() <-chan struct{} {
	return r.loop.Done()
}

// Tick runs the three fetches concurrently and returns once all of them
// have settled. Errors are surfaced but never stop the loop.
func (r *Reconciler) Tick(ctx context.Context) (time.Duration, bool) {
	if r.loop.Stopped() {
		return 0, false
	}

	var g errgroup.Group

	g.Go(func() error {
		status, err := r.fetcher.Status(ctx, r.runID)
		if err != nil {
			return r.fail("status", err)
		}
		r.apply(func() { r.status = status })
		return nil
	})

	g.Go(func() error {
		page, err := r.fetcher.Events(ctx, r.runID)
		if err != nil {
			return r.fail("events", err)
		}
		r.apply(func() {
			r.events = page.Events
			r.eventsProvisional = page.Provisional
		})
		return nil
	})

	g.Go(func() error {
		page, err := r.fetcher.Trace(ctx, r.runID)
		if err != nil {
			return r.fail("trace", err)
		}
		r.apply(func() {
			r.packets = page.Packets
			r.traceSummary = page.Summary
			r.traceProvisional = page.Provisional
		})
		return nil
	})

	tickErr := g.Wait()

	if r.loop.Stopped() {
		return 0, false
	}

	r.mu.Lock()
	r.ticks++
	state := models.RunState("")
	if r.status != nil {
		state = r.status.State
	}
	nEvents, nPackets := len(r.events), len(r.packets)
	r.mu.Unlock()

	if tickErr == nil {
		monitoring.Logf("[RECONCILE] Run %s: state=%s events=%d packets=%d", r.runID, state, nEvents, nPackets)
	}

	if models.DescribeState(state).Cadence == models.CadenceSettled {
		return r.config.SettledInterval, true
	}
	return r.config.ActiveInterval, true
}

// apply runs f under the lock unless the loop was stopped while the fetch
// was in flight.
func (r *Reconciler) apply(f func()) {
	if r.loop.Stopped() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f()
}

func (r *Reconciler) fail(what string, err error) error {
	if r.loop.Stopped() {
		return err
	}
	monitoring.Logf("[RECONCILE] Fetching %s for run %s failed: %v", what, r.runID, err)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.onError(err)
	return err
}

// View builds a snapshot from the latest applied results.
func (r *Reconciler) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return View{
		Status:          r.status,
		SortedEvents:    SortEvents(r.events),
		TraceByPacketID: IndexTrace(r.packets),
		LivePackets:     RankPackets(r.packets),
		TraceSummary:    r.traceSummary,
		Provisional:     r.eventsProvisional || r.traceProvisional,
		Err:             r.err,
		Ticks:           r.ticks,
	}
}

func (r *Reconciler) HasEvent(eventID string) bool {
	return r.View().HasEvent(eventID)
}

func (r *Reconciler) ExportAllowed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status != nil && r.status.State.Reviewable()
}

// ClearError dismisses the last surfaced error. Errors otherwise persist
// across later successful polls.
func (r *Reconciler) ClearError() {
	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
}
