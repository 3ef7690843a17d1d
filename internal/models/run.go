package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type RunState string

const (
	StatePending        RunState = "PENDING"
	StateRunning        RunState = "RUNNING"
	StateReadyForReview RunState = "READY_FOR_REVIEW"
	StateExported       RunState = "EXPORTED"
	StateFailed         RunState = "FAILED"
)

// Reviewable reports whether the run has produced output a reviewer can act on.
func (s RunState) Reviewable() bool {
	return s == StateReadyForReview || s == StateExported
}

// Settled reports whether the backend has stopped actively progressing the run.
// READY_FOR_REVIEW is settled but not terminal: an export may still follow.
func (s RunState) Settled() bool {
	return s.Reviewable() || s == StateFailed
}

func (s RunState) Terminal() bool {
	return s == StateExported || s == StateFailed
}

type Stage string

const (
	StageIngest         Stage = "INGEST"
	StageLocalProposals Stage = "LOCAL_PROPOSALS"
	StageGeminiFlash    Stage = "GEMINI_FLASH"
	StageGeminiPro      Stage = "GEMINI_PRO"
	StagePostprocess    Stage = "POSTPROCESS"
	StageReadyForReview Stage = "READY_FOR_REVIEW"
	StageExport         Stage = "EXPORT"
)

// RunStatus is a read-only snapshot of a run as reported by the backend.
type RunStatus struct {
	RunID        string           `json:"run_id"`
	State        RunState         `json:"state"`
	Stage        Stage            `json:"stage"`
	StageMessage string           `json:"stage_message,omitempty"`
	ProgressPct  int              `json:"progress_pct"`
	Metrics      map[string]any   `json:"metrics,omitempty"`
	FailedStage  Stage            `json:"failed_stage,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	TimingsMS    map[string]int64 `json:"timings_ms,omitempty"`
}

// Metric returns a named counter as a number. Missing or non-numeric
// counters read as zero.
func (s *RunStatus) Metric(name string) float64 {
	if s == nil || s.Metrics == nil {
		return 0
	}
	switch v := s.Metrics[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// RunSummary holds the reviewer-facing counters derived from run metrics.
type RunSummary struct {
	ClipsChecked       int
	PotentialIncidents int
	ReadyForReview     int
	NeedsExtraCheck    int
}

func (s *RunStatus) Summary() RunSummary {
	potential := s.Metric("candidate_total")
	if potential == 0 {
		potential = s.Metric("packets_sent_flash")
	}
	return RunSummary{
		ClipsChecked:       int(s.Metric("flash_done") + s.Metric("pro_done")),
		PotentialIncidents: int(potential),
		ReadyForReview:     int(s.Metric("packets_finalized")),
		NeedsExtraCheck:    int(s.Metric("flash_uncertain")),
	}
}

// Run is a run this client created, as recorded locally.
type Run struct {
	ID        string
	VideoName string
	APIBase   string
	CreatedAt time.Time
}

func NewRun(id, videoName, apiBase string) *Run {
	if id == "" {
		id = NewRunID()
	}
	return &Run{
		ID:        id,
		VideoName: videoName,
		APIBase:   apiBase,
		CreatedAt: time.Now(),
	}
}

// NewRunID returns an id in the backend's run_<10 hex> format.
func NewRunID() string {
	hex := uuid.New().String()
	compact := make([]byte, 0, 10)
	for i := 0; i < len(hex) && len(compact) < 10; i++ {
		if hex[i] != '-' {
			compact = append(compact, hex[i])
		}
	}
	return "run_" + string(compact)
}
