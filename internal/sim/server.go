// Package sim serves a scripted stand-in for the analysis backend. Runs
// move through the pipeline stages on a timer and end up ready for
// review with a fixed set of incidents.
package sim

import (
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/storage"
)

const DefaultStep = time.Second

type Options struct {
	// Step is how long each pipeline stage takes. Zero or negative
	// makes a started run ready immediately.
	Step time.Duration

	// FailAt, when set, fails every run on reaching that stage.
	FailAt models.Stage

	// Uploads, when set, receives uploaded videos.
	Uploads storage.Storage

	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	opts  Options
	runs  *runStore
	newID func() string
}

func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:  opts,
		runs:  newRunStore(),
		newID: models.NewRunID,
	}
}

// phaseOf must be called with the store lock held.
func (s *Server) phaseOf(r *run) phase {
	if s.opts.Step <= 0 {
		return phaseReady
	}
	p := phase(s.opts.Now().Sub(r.startedAt) / s.opts.Step)
	if p > phaseReady {
		p = phaseReady
	}
	return p
}

// statusOf must be called with the store lock held.
func (s *Server) statusOf(r *run) models.RunStatus {
	status := models.RunStatus{
		RunID:       r.id,
		State:       models.StatePending,
		Stage:       models.StageIngest,
		ProgressPct: 0,
		Metrics:     map[string]any{},
		TimingsMS:   map[string]int64{},
	}
	if !r.started {
		status.StageMessage = "Waiting to start"
		return status
	}

	p := s.visiblePhase(r)
	info := phases[p]
	status.Stage = info.stage
	status.ProgressPct = info.progress
	status.StageMessage = info.message
	status.Metrics = metrics(p)
	for done := phaseIngest; done < p; done++ {
		status.TimingsMS[string(phases[done].stage)] = s.opts.Step.Milliseconds()
	}

	switch {
	case s.opts.FailAt != "" && info.stage == s.opts.FailAt:
		status.State = models.StateFailed
		status.Stage = s.opts.FailAt
		status.FailedStage = s.opts.FailAt
		status.StageMessage = "Pipeline failed"
		status.ErrorMessage = "simulated failure in " + string(s.opts.FailAt)
	case r.exported:
		status.State = models.StateExported
		status.Stage = models.StageExport
		status.ProgressPct = 100
		status.StageMessage = "Export completed"
	case p == phaseReady:
		status.State = models.StateReadyForReview
	default:
		status.State = models.StateRunning
	}
	return status
}

// visiblePhase is how much pipeline output a run exposes. Failed runs
// freeze at the failing stage.
func (s *Server) visiblePhase(r *run) phase {
	if !r.started {
		return -1
	}
	p := s.phaseOf(r)
	if s.opts.FailAt == "" {
		return p
	}
	for candidate := phaseIngest; candidate <= p; candidate++ {
		if phases[candidate].stage == s.opts.FailAt {
			return candidate
		}
	}
	return p
}
