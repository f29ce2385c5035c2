package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

// IngestionRunRepository persists run summaries so the last outcome survives restarts.
type IngestionRunRepository struct {
	db *sql.DB
}

// NewIngestionRunRepository creates a new IngestionRunRepository with the provided database connection.
func NewIngestionRunRepository(db *sql.DB) *IngestionRunRepository {
	return &IngestionRunRepository{db: db}
}

// Save stores a finished run.
func (r *IngestionRunRepository) Save(ctx context.Context, s model.RunSummary) error {
	summary, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT INTO ingestion_run (id, started_at, finished_at, range_from, range_to, failed, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.RunID,
		s.StartedAt.UTC().Format(timestampLayout),
		s.FinishedAt.UTC().Format(timestampLayout),
		s.Range.From.Format(model.DateLayout),
		s.Range.To.Format(model.DateLayout),
		s.Failed(),
		string(summary),
	)
	if err != nil {
		return apperrors.NewStoreError(apperrors.ErrWriteFailed, "save run", err)
	}
	return nil
}

// Latest returns the most recently started run.
func (r *IngestionRunRepository) Latest(ctx context.Context) (model.RunSummary, error) {
	var summary string
	err := r.db.QueryRowContext(ctx,
		`SELECT summary FROM ingestion_run ORDER BY started_at DESC LIMIT 1`,
	).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunSummary{}, apperrors.ErrNoIngestionRun
	}
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to query ingestion_run table: %w", err)
	}

	var s model.RunSummary
	if err := json.Unmarshal([]byte(summary), &s); err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return s, nil
}
