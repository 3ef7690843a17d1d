package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kdimtricp/civiclens/internal/models"
)

// RunRepository records runs created from this machine so they can be
// listed and resumed later.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Insert(ctx context.Context, run *models.Run) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, video_name, api_base, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.VideoName, run.APIBase, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, video_name, api_base, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.VideoName, &run.APIBase, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List returns runs newest first.
func (r *RunRepository) List(ctx context.Context) ([]models.Run, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, video_name, api_base, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		if err := rows.Scan(&run.ID, &run.VideoName, &run.APIBase, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
