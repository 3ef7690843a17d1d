package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/civiclens/internal/models"
)

// DraftRepo persists staged review decisions, one per run and event.
type DraftRepo struct {
	db *DB
}

func NewDraftRepo(db *DB) *DraftRepo {
	return &DraftRepo{db: db}
}

func (r *DraftRepo) PutDraft(ctx context.Context, runID string, d models.ReviewDecision) error {
	query := `
		INSERT INTO drafts (run_id, event_id, decision, reviewer_notes, include_plate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, event_id)
		DO UPDATE SET
			decision = excluded.decision,
			reviewer_notes = excluded.reviewer_notes,
			include_plate = excluded.include_plate,
			updated_at = excluded.updated_at`

	_, err := r.db.conn.ExecContext(ctx, query,
		runID, d.EventID, string(d.Decision), d.ReviewerNotes, d.IncludePlate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// GetDraft reports false when no draft has been staged for the event.
func (r *DraftRepo) GetDraft(ctx context.Context, runID, eventID string) (models.ReviewDecision, bool, error) {
	var (
		decision string
		d        = models.ReviewDecision{EventID: eventID}
	)
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT decision, reviewer_notes, include_plate FROM drafts WHERE run_id = ? AND event_id = ?`,
		runID, eventID,
	).Scan(&decision, &d.ReviewerNotes, &d.IncludePlate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewDecision{}, false, nil
	}
	if err != nil {
		return models.ReviewDecision{}, false, fmt.Errorf("failed to load draft: %w", err)
	}
	d.Decision = models.Decision(decision)
	return d, true, nil
}

// ListDrafts returns every draft staged for a run, ordered by event id.
func (r *DraftRepo) ListDrafts(ctx context.Context, runID string) ([]models.ReviewDecision, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT event_id, decision, reviewer_notes, include_plate FROM drafts WHERE run_id = ? ORDER BY event_id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []models.ReviewDecision
	for rows.Next() {
		var (
			d        models.ReviewDecision
			decision string
		)
		if err := rows.Scan(&d.EventID, &decision, &d.ReviewerNotes, &d.IncludePlate); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		d.Decision = models.Decision(decision)
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}
