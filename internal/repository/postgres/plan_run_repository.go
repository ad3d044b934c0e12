package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
)

const planRunColumns = `id, status, horizon, sku_count, excluded_count, solver_status,
	degraded, total_cost, archive_key, error_message, result, started_at, completed_at`

// planRunRow is the stored form of domain.PlanRun; the result is JSON text.
type planRunRow struct {
	ID            string          `db:"id"`
	Status        string          `db:"status"`
	Horizon       int             `db:"horizon"`
	SKUCount      int             `db:"sku_count"`
	ExcludedCount int             `db:"excluded_count"`
	SolverStatus  string          `db:"solver_status"`
	Degraded      bool            `db:"degraded"`
	TotalCost     decimal.Decimal `db:"total_cost"`
	ArchiveKey    string          `db:"archive_key"`
	ErrorMessage  string          `db:"error_message"`
	Result        string          `db:"result"`
	StartedAt     time.Time       `db:"started_at"`
	CompletedAt   sql.NullTime    `db:"completed_at"`
}

func (row planRunRow) toDomain(withResult bool) (*domain.PlanRun, error) {
	run := &domain.PlanRun{
		ID:            row.ID,
		Status:        domain.RunStatus(row.Status),
		Horizon:       row.Horizon,
		SKUCount:      row.SKUCount,
		ExcludedCount: row.ExcludedCount,
		SolverStatus:  row.SolverStatus,
		Degraded:      row.Degraded,
		TotalCost:     row.TotalCost,
		ArchiveKey:    row.ArchiveKey,
		ErrorMessage:  row.ErrorMessage,
		StartedAt:     row.StartedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		at := row.CompletedAt.Time.UTC()
		run.CompletedAt = &at
	}
	if withResult && row.Result != "" {
		var res domain.PlanResult
		if err := json.Unmarshal([]byte(row.Result), &res); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %s: %w", row.ID, err)
		}
		run.Result = &res
	}
	return run, nil
}

type planRunRepository struct {
	db *DB
}

func NewPlanRunRepository(db *DB) *planRunRepository {
	return &planRunRepository{db: db}
}

// CreateRun records a run as started.
func (r *planRunRepository) CreateRun(ctx context.Context, run *domain.PlanRun) error {
	query := r.db.Rebind(`
		INSERT INTO plan_runs (id, status, horizon, started_at)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Status, run.Horizon, run.StartedAt.UTC()); err != nil {
		return fmt.Errorf("failed to create plan run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run, including its result when set.
func (r *planRunRepository) FinishRun(ctx context.Context, run *domain.PlanRun) error {
	var result string
	if run.Result != nil {
		payload, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
		result = string(payload)
	}

	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	query := r.db.Rebind(`
		UPDATE plan_runs
		SET status = ?, sku_count = ?, excluded_count = ?, solver_status = ?,
		    degraded = ?, total_cost = ?, archive_key = ?, error_message = ?,
		    result = ?, completed_at = ?
		WHERE id = ?
	`)
	res, err := r.db.ExecContext(ctx, query,
		run.Status, run.SKUCount, run.ExcludedCount, run.SolverStatus,
		run.Degraded, run.TotalCost, run.ArchiveKey, run.ErrorMessage,
		result, completedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("plan run %s: %w", run.ID, repository.ErrNotFound)
	}
	return nil
}

// GetRun returns the run with its full result.
func (r *planRunRepository) GetRun(ctx context.Context, id string) (*domain.PlanRun, error) {
	var row planRunRow
	query := r.db.Rebind("SELECT " + planRunColumns + " FROM plan_runs WHERE id = ?")
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan run %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan run: %w", err)
	}
	return row.toDomain(true)
}

// ListRuns returns the most recent runs without their results.
func (r *planRunRepository) ListRuns(ctx context.Context, limit int) ([]domain.PlanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []planRunRow
	query := r.db.Rebind("SELECT " + planRunColumns + " FROM plan_runs ORDER BY started_at DESC, id LIMIT ?")
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list plan runs: %w", err)
	}

	out := make([]domain.PlanRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toDomain(false)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, nil
}
