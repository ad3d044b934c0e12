package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SolverStatus classifies the outcome of a solve
type SolverStatus string

const (
	StatusOptimal    SolverStatus = "optimal"
	StatusFeasible   SolverStatus = "feasible"
	StatusInfeasible SolverStatus = "infeasible"
	StatusUnbounded  SolverStatus = "unbounded"
	StatusTimeLimit  SolverStatus = "time_limit"
)

// PlanLine is the reorder decision for one SKU
type PlanLine struct {
	SKU         string          `json:"sku"`
	Warehouse   string          `json:"warehouse,omitempty"`
	Quantity    float64         `json:"quantity"`
	RawQuantity float64         `json:"raw_quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	LineCost    decimal.Decimal `json:"line_cost"`
}

// Adjustment records one correction the validator applied to a raw quantity
type Adjustment struct {
	SKU  string  `json:"sku"`
	Kind string  `json:"kind"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Adjustment kinds.
const (
	AdjustClampNegative = "clamp_negative"
	AdjustSnap          = "snap"
	AdjustRoundUp       = "round_up"
	AdjustRaiseMinimum  = "raise_to_minimum"
	AdjustRoundDownMax  = "round_down_to_max"
)

// ReplenishmentPlan is the validated reorder plan returned to the caller.
// Lines are ordered by SKU.
type ReplenishmentPlan struct {
	Lines          []PlanLine      `json:"lines"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ObjectiveValue float64         `json:"objective_value"`
	SolverStatus   SolverStatus    `json:"solver_status"`
	Degraded       bool            `json:"degraded"`
	Adjustments    []Adjustment    `json:"adjustments,omitempty"`
}

// Quantities returns the sku to reorder quantity mapping.
func (p ReplenishmentPlan) Quantities() map[string]float64 {
	out := make(map[string]float64, len(p.Lines))
	for _, l := range p.Lines {
		out[l.SKU] = l.Quantity
	}
	return out
}

// Quantity returns the planned quantity for sku, or 0.
func (p ReplenishmentPlan) Quantity(sku string) float64 {
	for _, l := range p.Lines {
		if l.SKU == sku {
			return l.Quantity
		}
	}
	return 0
}

// InventoryPolicy is the per-SKU inventory control report attached to a plan
type InventoryPolicy struct {
	SKU                 string  `json:"sku"`
	DailyDemand         float64 `json:"daily_demand"`
	DemandStdDev        float64 `json:"demand_std_dev"`
	EOQ                 float64 `json:"eoq"`
	SafetyStock         float64 `json:"safety_stock"`
	ReorderPoint        float64 `json:"reorder_point"`
	DaysOfSupply        float64 `json:"days_of_supply"`
	StockoutProbability float64 `json:"stockout_probability"`
	LeadTimeDays        float64 `json:"lead_time_days"`
	ServiceLevel        float64 `json:"service_level"`
	ShouldReorder       bool    `json:"should_reorder"`
}

// PlanRequest is the core input for one planning run.
type PlanRequest struct {
	RunID           string // generated when empty
	Records         []DemandRecord
	Items           []Item
	Horizon         int
	Constraints     []Constraint
	SolverTimeLimit time.Duration // overrides the settings value when > 0
}

// PlanResult is everything a planning run produces.
type PlanResult struct {
	RunID     string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Horizon   int                `json:"horizon"`
	Forecasts []Forecast         `json:"forecasts"`
	Excluded  []SKUFailure       `json:"excluded,omitempty"`
	Plan      *ReplenishmentPlan `json:"plan,omitempty"`
	Policies  []InventoryPolicy  `json:"policies,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}
