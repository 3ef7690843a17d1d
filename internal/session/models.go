package session

import (
	"github.com/kdimtricp/civiclens/internal/models"
	"github.com/kdimtricp/civiclens/internal/reconcile"
)

type Screen string

const (
	ScreenStatus Screen = "status"
	ScreenReview Screen = "review"
	ScreenClosed Screen = "closed"
)

type UpdateType string

const (
	UpdateStatus   UpdateType = "status"
	UpdateLogs     UpdateType = "logs"
	UpdateReady    UpdateType = "ready"
	UpdateReview   UpdateType = "review"
	UpdateError    UpdateType = "error"
	UpdateFatal    UpdateType = "fatal"
	UpdateSubmit   UpdateType = "submitted"
	UpdateExported UpdateType = "exported"
)

// Update tells a renderer that part of the session changed. Data holds
// the new value for that part.
type Update struct {
	Type UpdateType
	Data any
}

// Snapshot is everything a renderer needs to draw the current screen.
type Snapshot struct {
	RunID   string
	Screen  Screen
	Status  *models.RunStatus
	Summary models.RunSummary
	Logs    []models.LogLine
	Review  reconcile.View
	Err     error
	// Fatal is set once the run can no longer be followed.
	Fatal error
}
