// Package export downloads case packs and saves them locally.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/civiclens/internal/monitoring"
	"github.com/kdimtricp/civiclens/internal/storage"
)

var ErrEmptyRunID = errors.New("run id is required")

type Downloader interface {
	Export(ctx context.Context, runID string) ([]byte, error)
}

// FileName is the name a run's case pack is saved under.
func FileName(runID string) string {
	return fmt.Sprintf("case_pack_%s.zip", runID)
}

type Result struct {
	RunID    string
	Path     string
	Size     int64
	Duration time.Duration
}

type Coordinator struct {
	downloader Downloader
	store      storage.Storage
}

func NewCoordinator(downloader Downloader, store storage.Storage) *Coordinator {
	return &Coordinator{downloader: downloader, store: store}
}

// ExportCasePack fetches the archive for runID and saves it. On failure
// nothing is written and no other client state changes.
func (c *Coordinator) ExportCasePack(ctx context.Context, runID string) (*Result, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}

	start := time.Now()
	monitoring.Logf("[EXPORT] Requesting case pack for %s", runID)

	data, err := c.downloader.Export(ctx, runID)
	if err != nil {
		monitoring.Logf("[EXPORT] Export of %s failed: %v", runID, err)
		return nil, fmt.Errorf("failed to export %s: %w", runID, err)
	}

	saved, err := c.store.Save(FileName(runID), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to save case pack for %s: %w", runID, err)
	}

	result := &Result{
		RunID:    runID,
		Path:     saved.Path,
		Size:     saved.Size,
		Duration: time.Since(start),
	}
	monitoring.Logf("[EXPORT] Saved %s (%d bytes) in %v", result.Path, result.Size, result.Duration)
	return result, nil
}
