// Package session drives one reviewer's view of a run: the status screen
// while the pipeline works, then the review screen once incidents are
// ready.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kdimtricp/civiclens/internal/export"
	"github.com/kdimtricp/civiclens/internal/logtail"
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/kdimtricp/civiclens/internal/reconcile"
	"github.com/kdimtricp/civiclens/internal/review"
	"github.com/kdimtricp/civiclens/internal/storage"
	"github.com/kdimtricp/civiclens/internal/tracker"
)

var ErrExportNotAllowed = errors.New("case pack export is only available once the run is ready for review")

// API is the backend surface a session uses.
type API interface {
	reconcile.Fetcher
	logtail.LogsFetcher
	review.Sender
	export.Downloader
}

type Config struct {
	Tracker   tracker.Config
	Reconcile reconcile.Config
	Logs      logtail.Config
}

type Session struct {
	runID    string
	api      API
	config   Config
	ctx      context.Context
	updates  chan Update
	exporter *export.Coordinator

	submitter *review.Submitter

	mu         sync.Mutex
	screen     Screen
	closed     bool
	lastErr    error
	fatal      error
	tracker    *tracker.Tracker
	logs       *logtail.Follower
	reconciler *reconcile.Reconciler
}

// New prepares a session for runID. Drafts are kept in drafts (in memory
// when nil) and case packs are saved to packs.
func New(api API, runID string, config Config, drafts review.DraftStore, packs storage.Storage) *Session {
	s := &Session{
		runID:    runID,
		api:      api,
		config:   config,
		updates:  make(chan Update, 100),
		screen:   ScreenStatus,
		exporter: export.NewCoordinator(api, packs),
	}
	s.submitter = review.New(api, runID, drafts).WithEventSet(knownEvents{s})
	return s
}

// knownEvents admits the events the review screen has fetched so far.
type knownEvents struct{ s *Session }

func (k knownEvents) HasEvent(eventID string) bool {
	k.s.mu.Lock()
	r := k.s.reconciler
	k.s.mu.Unlock()
	return r != nil && r.HasEvent(eventID)
}

// Updates delivers change notifications. It is closed by Stop. Updates
// are dropped when the reader falls behind; Snapshot always has the
// current state.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

func (s *Session) RunID() string {
	return s.runID
}

// Start shows the status screen: it begins tracking the run and
// following its log.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx

	s.tracker = tracker.New(s.api, s.runID, s.config.Tracker, s.onReady, s.onTrackerError)
	s.logs = logtail.New(s.api, s.runID, s.config.Logs, s.reportError)
	t, l, loopCtx := s.tracker, s.logs, s.ctx
	s.mu.Unlock()

	monitoring.Logf("[SESSION] Watching run %s", s.runID)
	t.Start(loopCtx)
	l.Start(loopCtx)
}

func (s *Session) onReady(status *models.RunStatus) {
	s.publish(Update{Type: UpdateReady, Data: status})
	s.showReview()
}

// onTrackerError handles the tracker giving up. The status screen has
// nothing left to follow, so the log follower stops with it.
func (s *Session) onTrackerError(err error) {
	var failed *tracker.RunFailedError
	if errors.As(err, &failed) {
		monitoring.Logf("[SESSION] Run %s failed in %s", s.runID, failed.Stage)
	} else {
		monitoring.Logf("[SESSION] Lost track of run %s: %v", s.runID, err)
	}

	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	l := s.logs
	s.mu.Unlock()
	if l != nil {
		l.Stop()
	}

	s.reportError(err)
	s.publish(Update{Type: UpdateFatal, Data: err})
}

// Fatal returns the error that ended tracking, if any. Unlike Err it is
// not cleared by ClearError.
func (s *Session) Fatal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// showReview leaves the status screen: its loops stop and the
// reconciler takes over.
func (s *Session) showReview() {
	s.mu.Lock()
	if s.closed || s.screen == ScreenReview {
		s.mu.Unlock()
		return
	}
	s.screen = ScreenReview
	t, l := s.tracker, s.logs
	s.reconciler = reconcile.New(s.api, s.runID, s.config.Reconcile, s.reportError)
	r, ctx := s.reconciler, s.ctx
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if l != nil {
		l.Stop()
	}

	monitoring.Logf("[SESSION] Run %s is reviewable, switching to review", s.runID)
	r.Start(ctx)
}

// ShowReview switches to the review screen without waiting for the run
// to become reviewable.
func (s *Session) ShowReview(ctx context.Context) {
	s.mu.Lock()
	if s.ctx == nil {
		s.ctx = ctx
	}
	s.mu.Unlock()
	s.showReview()
}

// reportError raises the error banner. The latest error replaces any
// earlier one and stays until ClearError.
func (s *Session) reportError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.publish(Update{Type: UpdateError, Data: err})
}

func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	r := s.reconciler
	s.mu.Unlock()
	if r != nil {
		r.ClearError()
	}
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Screen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

func (s *Session) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
	}
}

// Refresh publishes the current snapshot pieces. Renderers call it on a
// timer so they redraw after every poll.
func (s *Session) Refresh() {
	snap := s.Snapshot()
	switch snap.Screen {
	case ScreenStatus:
		s.publish(Update{Type: UpdateStatus, Data: snap.Status})
		s.publish(Update{Type: UpdateLogs, Data: snap.Logs})
	case ScreenReview:
		s.publish(Update{Type: UpdateReview, Data: snap.Review})
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{RunID: s.runID, Screen: s.screen, Err: s.lastErr, Fatal: s.fatal}
	t, l, r := s.tracker, s.logs, s.reconciler
	s.mu.Unlock()

	if t != nil {
		snap.Status = t.Last()
		snap.Summary = t.Summary()
	}
	if l != nil {
		snap.Logs = l.Lines()
	}
	if r != nil {
		snap.Review = r.View()
		if snap.Review.Status != nil {
			snap.Status = snap.Review.Status
			snap.Summary = snap.Status.Summary()
		}
	}
	return snap
}

// Stage edits the draft decision for an event.
func (s *Session) Stage(ctx context.Context, eventID string, partial models.PartialDecision) (models.ReviewDecision, error) {
	d, err := s.submitter.Stage(ctx, eventID, partial)
	if err != nil {
		s.reportError(err)
	}
	return d, err
}

func (s *Session) Draft(ctx context.Context, eventID string) (models.ReviewDecision, error) {
	return s.submitter.Draft(ctx, eventID)
}

// Submit sends the draft decision for an event. The draft is kept.
func (s *Session) Submit(ctx context.Context, eventID string) (models.ReviewDecision, error) {
	d, err := s.submitter.Submit(ctx, eventID)
	if err != nil {
		s.reportError(err)
		return d, err
	}
	s.publish(Update{Type: UpdateSubmit, Data: d})
	return d, nil
}

// Export saves the run's case pack. It is refused until the run is
// ready for review.
func (s *Session) Export(ctx context.Context) (*export.Result, error) {
	s.mu.Lock()
	r := s.reconciler
	s.mu.Unlock()

	if r == nil || !r.ExportAllowed() {
		err := fmt.Errorf("export %s: %w", s.runID, ErrExportNotAllowed)
		s.reportError(err)
		return nil, err
	}

	result, err := s.exporter.ExportCasePack(ctx, s.runID)
	if err != nil {
		s.reportError(err)
		return nil, err
	}
	s.publish(Update{Type: UpdateExported, Data: result})
	return result, nil
}

// Stop ends every loop. Fetches already in flight finish but their
// results are dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.screen = ScreenClosed
	t, l, r := s.tracker, s.logs, s.reconciler
	close(s.updates)
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	if l != nil {
		l.Stop()
	}
	if r != nil {
		r.Stop()
	}
	monitoring.Logf("[SESSION] Stopped watching run %s", s.runID)
}
