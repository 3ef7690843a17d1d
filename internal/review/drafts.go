package review

import (
	"context"
	"sync"

	"github.com/kdimtricp/civiclens/internal/models"
)

// DraftStore keeps staged decisions that have not necessarily been
// submitted yet. Drafts are keyed by run and event.
type DraftStore interface {
	GetDraft(ctx context.Context, runID, eventID string) (models.ReviewDecision, bool, error)
	PutDraft(ctx context.Context, runID string, d models.ReviewDecision) error
}

type draftKey struct {
	runID   string
	eventID string
}

// MemoryDrafts is a DraftStore that lives as long as the process.
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[draftKey]models.ReviewDecision
}

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: make(map[draftKey]models.ReviewDecision)}
}

func (m *MemoryDrafts) GetDraft(ctx context.Context, runID, eventID string) (models.ReviewDecision, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftKey{runID, eventID}]
	return d, ok, nil
}

func (m *MemoryDrafts) PutDraft(ctx context.Context, runID string, d models.ReviewDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draftKey{runID, d.EventID}] = d
	return nil
}
