package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus tracks a persisted planning run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PlanRun is the stored summary of one planning run. Result is the full
// PlanResult of a completed run.
type PlanRun struct {
	ID            string          `json:"id" db:"id"`
	Status        RunStatus       `json:"status" db:"status"`
	Horizon       int             `json:"horizon" db:"horizon"`
	SKUCount      int             `json:"sku_count" db:"sku_count"`
	ExcludedCount int             `json:"excluded_count" db:"excluded_count"`
	SolverStatus  string          `json:"solver_status,omitempty" db:"solver_status"`
	Degraded      bool            `json:"degraded" db:"degraded"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
	ArchiveKey    string          `json:"archive_key,omitempty" db:"archive_key"`
	ErrorMessage  string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	Result        *PlanResult     `json:"result,omitempty" db:"-"`
}

// Complete records the outcome of res on the run.
func (r *PlanRun) Complete(res *PlanResult, at time.Time) {
	r.Status = RunCompleted
	r.CompletedAt = &at
	r.Result = res
	r.SKUCount = len(res.Forecasts)
	r.ExcludedCount = len(res.Excluded)
	if res.Plan != nil {
		r.SolverStatus = string(res.Plan.SolverStatus)
		r.Degraded = res.Plan.Degraded
		r.TotalCost = res.Plan.TotalCost
	}
}

// Fail marks the run failed with err.
func (r *PlanRun) Fail(err error, at time.Time) {
	r.Status = RunFailed
	r.CompletedAt = &at
	r.ErrorMessage = err.Error()
}

// HistoryFilter narrows a demand history query. Zero values do not filter.
type HistoryFilter struct {
	SKUs []string
	From time.Time
	To   time.Time // exclusive
}
