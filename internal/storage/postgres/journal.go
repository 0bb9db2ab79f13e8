package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/huntbot/internal/journal"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one coordinator session.
type Run struct {
	ID         uuid.UUID
	Host       string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// JournalRepository persists runs and their exclusive actions.
type JournalRepository struct {
	db *pgxpool.Pool
}

// NewJournalRepository creates a JournalRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// CreateRun inserts a run.
//
// Postcondition: Returns the stored Run with StartedAt set.
func (r *JournalRepository) CreateRun(ctx context.Context, id uuid.UUID, host string) (Run, error) {
	run := Run{ID: id, Host: host}
	err := r.db.QueryRow(ctx,
		`INSERT INTO runs (id, host) VALUES ($1, $2) RETURNING started_at`,
		id, host,
	).Scan(&run.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's finish time.
//
// Postcondition: Returns ErrRunNotFound if id does not exist.
func (r *JournalRepository) FinishRun(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE runs SET finished_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
//
// Postcondition: Returns ErrRunNotFound if id does not exist.
func (r *JournalRepository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var run Run
	err := r.db.QueryRow(ctx,
		`SELECT id, host, started_at, finished_at FROM runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Host, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// SaveAction inserts a journal action. It implements journal.Sink.
//
// Precondition: a.RunID must reference an existing run.
// Postcondition: Returns ErrRunNotFound if the run does not exist.
func (r *JournalRepository) SaveAction(ctx context.Context, a journal.Action) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO actions (id, run_id, kind, target, point_x, point_y, presses, clicks, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.RunID, string(a.Kind), a.Target, a.PointX, a.PointY, a.Presses, a.Clicks,
		a.StartedAt, a.Duration.Milliseconds(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrRunNotFound
		}
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

// ListActions returns up to limit actions of a run, oldest first.
//
// Precondition: limit must be > 0.
func (r *JournalRepository) ListActions(ctx context.Context, runID uuid.UUID, limit int) ([]journal.Action, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, run_id, kind, target, point_x, point_y, presses, clicks, started_at, duration_ms
		 FROM actions WHERE run_id = $1 ORDER BY started_at, id LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []journal.Action
	for rows.Next() {
		var (
			a          journal.Action
			kind       string
			durationMS int64
		)
		if err := rows.Scan(&a.ID, &a.RunID, &kind, &a.Target, &a.PointX, &a.PointY,
			&a.Presses, &a.Clicks, &a.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		a.Kind = journal.Kind(kind)
		a.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return out, nil
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	// SQLSTATE 23503 (foreign_key_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return false
}
