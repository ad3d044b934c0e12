// Package validate turns raw solver output into a plan that honours order
// multiples, supplier minimums and order caps, then re-checks budget and
// capacity without trusting the solver.
package validate

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/optimize"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// capacityTol absorbs float noise when summing whole units.
const capacityTol = 1e-6

// Validator corrects and verifies raw plans.
type Validator struct {
	snapTolerance float64
}

// New creates a validator using s.SnapTolerance.
func New(s settings.Settings) *Validator {
	return &Validator{snapTolerance: s.SnapTolerance}
}

// Validate corrects raw quantities SKU by SKU and verifies the result against
// p. A plan that cannot be repaired returns *domain.PlanValidationError.
func (v *Validator) Validate(p *constraints.Problem, raw optimize.RawPlan) (*domain.ReplenishmentPlan, error) {
	if len(raw.Quantities) != len(p.SKUs) {
		return nil, fmt.Errorf("raw plan has %d quantities for %d skus", len(raw.Quantities), len(p.SKUs))
	}

	plan := &domain.ReplenishmentPlan{
		ObjectiveValue: raw.Objective,
		SolverStatus:   raw.Status,
		Degraded:       raw.Degraded,
		TotalCost:      decimal.Zero,
	}
	final := make([]float64, len(p.SKUs))
	for i, m := range p.SKUs {
		q, adj, err := v.correct(m, raw.Quantities[i])
		if err != nil {
			return nil, err
		}
		final[i] = q
		plan.Adjustments = append(plan.Adjustments, adj...)

		line := domain.PlanLine{
			SKU:         m.SKU,
			Warehouse:   m.Warehouse,
			Quantity:    q,
			RawQuantity: raw.Quantities[i],
			UnitCost:    m.UnitCost,
			LineCost:    m.UnitCost.Mul(decimal.NewFromFloat(q)),
		}
		plan.Lines = append(plan.Lines, line)
		plan.TotalCost = plan.TotalCost.Add(line.LineCost)
	}

	if err := checkBudget(p, plan, raw.Quantities); err != nil {
		return nil, err
	}
	if err := checkCapacity(p, final); err != nil {
		return nil, err
	}
	return plan, nil
}

func (v *Validator) correct(m constraints.SKUModel, raw float64) (float64, []domain.Adjustment, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, nil, &domain.PlanValidationError{SKU: m.SKU, Constraint: "quantity", Reason: fmt.Sprintf("solver returned %v", raw)}
	}
	var adj []domain.Adjustment
	record := func(kind string, from, to float64) {
		adj = append(adj, domain.Adjustment{SKU: m.SKU, Kind: kind, From: from, To: to})
	}

	q := raw
	if q < 0 {
		record(domain.AdjustClampNegative, q, 0)
		q = 0
	}

	mult := m.OrderMultiple
	if mult <= 0 {
		mult = 1
	}
	nearest := math.Round(q/mult) * mult
	switch {
	case q == nearest:
	case math.Abs(q-nearest) <= v.snapTolerance:
		record(domain.AdjustSnap, q, nearest)
		q = nearest
	default:
		up := constraints.CeilToMultiple(q, mult)
		record(domain.AdjustRoundUp, q, up)
		q = up
	}

	// Ordering nothing always satisfies a supplier minimum.
	if q > 0 && q < m.MinQty {
		record(domain.AdjustRaiseMinimum, q, m.MinQty)
		q = m.MinQty
	}

	if q > m.MaxQty {
		down := constraints.FloorToMultiple(m.MaxQty, mult)
		if down < m.MinQty {
			return 0, nil, &domain.PlanValidationError{
				SKU:        m.SKU,
				Constraint: "max_order",
				Reason:     fmt.Sprintf("no multiple of %g between minimum %g and maximum %g", mult, m.MinQty, m.MaxQty),
			}
		}
		record(domain.AdjustRoundDownMax, q, down)
		q = down
	}
	return q, adj, nil
}

// checkBudget re-verifies spend in exact decimal arithmetic. When it fails,
// the SKU whose correction added the most spend is named.
func checkBudget(p *constraints.Problem, plan *domain.ReplenishmentPlan, raw []float64) error {
	if p.Budget == nil || plan.TotalCost.LessThanOrEqual(*p.Budget) {
		return nil
	}
	var (
		culprit string
		worst   = decimal.Zero
	)
	for i, line := range plan.Lines {
		added := line.UnitCost.Mul(decimal.NewFromFloat(line.Quantity - math.Max(0, raw[i])))
		if added.GreaterThan(worst) {
			culprit, worst = line.SKU, added
		}
	}
	return &domain.PlanValidationError{
		SKU:        culprit,
		Constraint: domain.Budget{MaxSpend: *p.Budget}.String(),
		Reason:     fmt.Sprintf("plan cost %s exceeds budget %s", plan.TotalCost.StringFixed(2), p.Budget.StringFixed(2)),
	}
}

func checkCapacity(p *constraints.Problem, q []float64) error {
	for _, c := range p.Capacities {
		var units float64
		var culprit string
		var largest float64
		for _, sku := range c.SKUs {
			i := p.Index(sku)
			if i < 0 {
				continue
			}
			units += q[i]
			if q[i] > largest {
				culprit, largest = sku, q[i]
			}
		}
		if units > c.Headroom+capacityTol {
			return &domain.PlanValidationError{
				SKU:        culprit,
				Constraint: domain.Capacity{Warehouse: c.Warehouse, MaxUnits: c.MaxUnits}.String(),
				Reason:     fmt.Sprintf("plan orders %g units, headroom is %g", units, c.Headroom),
			}
		}
	}
	return nil
}
