// Package review stages and submits reviewer decisions.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/monitoring"
)

var (
	ErrInvalidDecision = errors.New("decision must be ACCEPT or REJECT")
	ErrUnknownEvent    = errors.New("event is not part of this run")
)

type Sender interface {
	SubmitReview(ctx context.Context, runID string, d models.ReviewDecision) error
}

// EventSet reports which event ids are currently known for a run.
type EventSet interface {
	HasEvent(eventID string) bool
}

type Submitter struct {
	sender Sender
	runID  string
	drafts DraftStore
	events EventSet
}

// New creates a submitter for one run. A nil store keeps drafts in memory.
func New(sender Sender, runID string, drafts DraftStore) *Submitter {
	if drafts == nil {
		drafts = NewMemoryDrafts()
	}
	return &Submitter{sender: sender, runID: runID, drafts: drafts}
}

// WithEventSet makes Stage and Submit refuse event ids that set does not
// contain.
func (s *Submitter) WithEventSet(set EventSet) *Submitter {
	s.events = set
	return s
}

func (s *Submitter) checkEvent(eventID string) error {
	if eventID == "" {
		return fmt.Errorf("%w: empty event id", ErrUnknownEvent)
	}
	if s.events != nil && !s.events.HasEvent(eventID) {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	return nil
}

// Draft returns the staged decision for eventID, or the default decision
// when nothing has been staged.
func (s *Submitter) Draft(ctx context.Context, eventID string) (models.ReviewDecision, error) {
	d, ok, err := s.drafts.GetDraft(ctx, s.runID, eventID)
	if err != nil {
		return models.ReviewDecision{}, fmt.Errorf("failed to load draft for %s: %w", eventID, err)
	}
	if !ok {
		return models.DefaultDecision(eventID), nil
	}
	d.EventID = eventID
	return d, nil
}

// Stage merges the fields set in partial into the draft for eventID.
// Nothing is sent to the backend.
func (s *Submitter) Stage(ctx context.Context, eventID string, partial models.PartialDecision) (models.ReviewDecision, error) {
	if err := s.checkEvent(eventID); err != nil {
		return models.ReviewDecision{}, err
	}
	if partial.Decision != nil && !partial.Decision.Valid() {
		return models.ReviewDecision{}, fmt.Errorf("%w: got %q", ErrInvalidDecision, *partial.Decision)
	}

	current, err := s.Draft(ctx, eventID)
	if err != nil {
		return models.ReviewDecision{}, err
	}

	merged := partial.Apply(current)
	if err := s.drafts.PutDraft(ctx, s.runID, merged); err != nil {
		return models.ReviewDecision{}, fmt.Errorf("failed to save draft for %s: %w", eventID, err)
	}
	return merged, nil
}

// Submit sends the current draft for eventID, or the default decision if
// none was staged. The draft is kept whether or not the send succeeds.
func (s *Submitter) Submit(ctx context.Context, eventID string) (models.ReviewDecision, error) {
	if err := s.checkEvent(eventID); err != nil {
		return models.ReviewDecision{}, err
	}

	d, err := s.Draft(ctx, eventID)
	if err != nil {
		return models.ReviewDecision{}, err
	}

	monitoring.Logf("[REVIEW] Submitting %s for %s/%s", d.Decision, s.runID, eventID)
	if err := s.sender.SubmitReview(ctx, s.runID, d); err != nil {
		monitoring.Logf("[REVIEW] Submission for %s/%s failed: %v", s.runID, eventID, err)
		return d, fmt.Errorf("failed to submit review for %s: %w", eventID, err)
	}
	return d, nil
}
