package domain

import (
	"fmt"
	"time"
)

// InsufficientHistoryError means a SKU has too few regularized periods to
// forecast. It is fatal for that SKU only.
type InsufficientHistoryError struct {
	SKU  string
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("sku %s: insufficient history: %d periods, need %d", e.SKU, e.Have, e.Need)
}

// InfeasibleConstraintsError means the constraint set cannot be satisfied.
// It aborts the run.
type InfeasibleConstraintsError struct {
	Constraint string
	SKU        string
	Reason     string
}

func (e *InfeasibleConstraintsError) Error() string {
	msg := "infeasible constraints"
	if e.Constraint != "" {
		msg += ": " + e.Constraint
	}
	if e.SKU != "" {
		msg += " (sku " + e.SKU + ")"
	}
	return msg + ": " + e.Reason
}

// SolverTimeoutError reports that the solver stopped at its time limit and the
// plan is the best incumbent found. It is a warning, not a failure.
type SolverTimeoutError struct {
	Limit   time.Duration
	Backend string
}

func (e *SolverTimeoutError) Error() string {
	return fmt.Sprintf("%s solver hit time limit %s; returning best found plan", e.Backend, e.Limit)
}

// PlanValidationError means the raw plan could not be made feasible by
// snapping and rounding. It aborts the run.
type PlanValidationError struct {
	SKU        string
	Constraint string
	Reason     string
}

func (e *PlanValidationError) Error() string {
	msg := "plan validation failed"
	if e.Constraint != "" {
		msg += ": " + e.Constraint
	}
	if e.SKU != "" {
		msg += " (sku " + e.SKU + ")"
	}
	return msg + ": " + e.Reason
}

// MissingItemError means a forecast SKU has no item economics to plan with.
type MissingItemError struct {
	SKU string
}

func (e *MissingItemError) Error() string {
	return fmt.Sprintf("sku %s: no item data", e.SKU)
}

// Failure stages reported in SKUFailure.
const (
	StagePreprocess = "preprocess"
	StageForecast   = "forecast"
	StagePlan       = "plan"
)

// SKUFailure records a SKU excluded from a run and why.
type SKUFailure struct {
	SKU    string `json:"sku"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewSKUFailure wraps err for sku at stage.
func NewSKUFailure(sku, stage string, err error) SKUFailure {
	return SKUFailure{SKU: sku, Stage: stage, Reason: err.Error(), Err: err}
}

func (f SKUFailure) Error() string { return f.Reason }

func (f SKUFailure) Unwrap() error { return f.Err }
