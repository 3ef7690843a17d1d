package sim

import (
	"sync"
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
)

type run struct {
	id        string
	videoName string
	videoFile string
	roiConfig []byte
	createdAt time.Time
	startedAt time.Time
	started   bool
	exported  bool
	reviews   map[string]models.ReviewDecision
	reviewSeq []string
}

// runStore holds every simulated run in memory, in creation order.
type runStore struct {
	mu    sync.Mutex
	runs  map[string]*run
	order []string
}

func newRunStore() *runStore {
	return &runStore{runs: make(map[string]*run)}
}

func (s *runStore) add(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.id] = r
	s.order = append(s.order, r.id)
}

// with runs f on the named run under the store lock.
func (s *runStore) with(id string, f func(r *run)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return false
	}
	f(r)
	return true
}

func (s *runStore) each(f func(r *run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		f(s.runs[id])
	}
}

// putReview replaces any earlier decision for the same event.
func (r *run) putReview(d models.ReviewDecision) {
	if _, ok := r.reviews[d.EventID]; !ok {
		r.reviewSeq = append(r.reviewSeq, d.EventID)
	}
	r.reviews[d.EventID] = d
}

func (r *run) reviewList() []models.ReviewDecision {
	out := make([]models.ReviewDecision, 0, len(r.reviewSeq))
	for _, id := range r.reviewSeq {
		out = append(out, r.reviews[id])
	}
	return out
}
