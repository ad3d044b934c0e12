package optimize

import (
	"math"
	"sort"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
)

// Greedy builds a feasible plan without a solver: uncovered requirements are
// filled in whole packs, raised to the supplier minimum, in order of stockout
// penalty per unit cost while budget and capacity allow. A SKU whose minimum
// no longer fits orders nothing. It returns nil when the minimums alone do not
// fit, matching the check the builder makes.
func Greedy(p *constraints.Problem) []float64 {
	q := make([]float64, len(p.SKUs))
	var minSpend float64
	for _, m := range p.SKUs {
		minSpend += m.Cost * m.MinQty
	}

	budget := math.Inf(1)
	if p.Budget != nil {
		budget = p.Budget.InexactFloat64()
	}
	if minSpend > budget+feasTol {
		return nil
	}
	room := make([]float64, len(p.Capacities))
	member := make([][]int, len(p.SKUs))
	for c, limit := range p.Capacities {
		room[c] = limit.Headroom
		var minUnits float64
		for _, sku := range limit.SKUs {
			if i := p.Index(sku); i >= 0 {
				minUnits += p.SKUs[i].MinQty
				member[i] = append(member[i], c)
			}
		}
		if minUnits > room[c]+feasTol {
			return nil
		}
	}

	order := make([]int, len(p.SKUs))
	for i := range order {
		order[i] = i
	}
	ratio := func(i int) float64 {
		m := p.SKUs[i]
		if m.Cost <= 0 {
			return math.Inf(1)
		}
		return m.StockoutPenalty / m.Cost
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ratio(order[a]), ratio(order[b])
		if ra != rb {
			return ra > rb
		}
		return p.SKUs[order[a]].SKU < p.SKUs[order[b]].SKU
	})

	var spend float64
	for _, i := range order {
		m := p.SKUs[i]
		// A unit only pays off when its penalty exceeds what it costs to hold.
		if m.StockoutPenalty <= m.Cost+m.HoldingCost {
			continue
		}
		if m.NetRequirement <= 0 {
			continue
		}
		packs := math.Ceil(m.NetRequirement/m.OrderMultiple - 1e-9)
		packs = math.Max(packs, math.Ceil(m.MinQty/m.OrderMultiple-1e-9))
		if !math.IsInf(m.MaxQty, 1) {
			packs = math.Min(packs, math.Floor(m.MaxQty/m.OrderMultiple+1e-9))
		}
		if m.Cost > 0 && !math.IsInf(budget, 1) {
			packs = math.Min(packs, math.Floor((budget-spend)/(m.Cost*m.OrderMultiple)+1e-9))
		}
		for _, c := range member[i] {
			packs = math.Min(packs, math.Floor(room[c]/m.OrderMultiple+1e-9))
		}
		add := packs * m.OrderMultiple
		if packs <= 0 || add < m.MinQty-1e-9 {
			continue
		}
		q[i] = add
		spend += add * m.Cost
		for _, c := range member[i] {
			room[c] -= add
		}
	}
	return q
}

// PlanCost evaluates the expected cost of order quantities q under p,
// including fixed ordering costs when integer is set.
func PlanCost(p *constraints.Problem, q []float64, integer bool) float64 {
	var total float64
	for i, m := range p.SKUs {
		total += (m.Cost+m.HoldingCost)*q[i] + m.StockoutPenalty*math.Max(0, m.NetRequirement-q[i])
		if integer && q[i] > 0 {
			total += m.OrderingCost
		}
	}
	return total
}
