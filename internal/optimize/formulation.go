package optimize

import (
	"math"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
)

// Formulation maps a planning problem onto solver variables.
type Formulation struct {
	Problem *Problem
	Packs   []int // per SKU: packs of the order multiple
	Short   []int // per SKU: uncovered requirement
	Setup   []int // per SKU: order placed indicator, -1 when absent
}

// Formulate builds
//
//	min Σ (c+h)·m·k + p·u + K·y
//	s.t. m·k + u >= net              (per SKU)
//	     Σ c·m·k <= budget
//	     Σ_{i in w} m·k <= headroom_w
//	     0 <= k <= max/m
//	     m·k - U·y <= 0              (integer mode, ordering cost or minimum)
//	     m·k - min·y >= 0            (integer mode with a supplier minimum)
//
// where q = m·k is the order quantity and u the shortage. A supplier minimum
// only binds when something is ordered. The continuous relaxation cannot
// express that, so there it is a lower bound for SKUs with a net requirement
// and dropped for the rest.
func Formulate(p *constraints.Problem, integer bool) *Formulation {
	f := &Formulation{Problem: &Problem{}}
	lp := f.Problem

	for _, m := range p.SKUs {
		mult := m.OrderMultiple
		var lower float64
		if !integer && m.NetRequirement > 0 {
			lower = m.MinQty / mult
		}
		k := lp.AddVar(Variable{
			Name:    m.SKU + ".packs",
			Lower:   lower,
			Upper:   m.MaxQty / mult,
			Integer: integer,
			Cost:    (m.Cost + m.HoldingCost) * mult,
		})
		u := lp.AddVar(Variable{
			Name:  m.SKU + ".shortage",
			Upper: math.Inf(1),
			Cost:  m.StockoutPenalty,
		})
		lp.AddRow(m.SKU+".demand", GE, m.NetRequirement, Term{Var: k, Coef: mult}, Term{Var: u, Coef: 1})
		f.Packs = append(f.Packs, k)
		f.Short = append(f.Short, u)

		setup := -1
		if integer && (m.OrderingCost > 0 || m.MinQty > 0) {
			setup = lp.AddVar(Variable{Name: m.SKU + ".order", Upper: 1, Integer: true, Cost: m.OrderingCost})
			lp.AddRow(m.SKU+".setup", LE, 0, Term{Var: k, Coef: mult}, Term{Var: setup, Coef: -bigM(m)})
			if m.MinQty > 0 {
				lp.AddRow(m.SKU+".minimum", GE, 0, Term{Var: k, Coef: mult}, Term{Var: setup, Coef: -m.MinQty})
			}
		}
		f.Setup = append(f.Setup, setup)
	}

	if p.Budget != nil {
		terms := make([]Term, 0, len(p.SKUs))
		for i, m := range p.SKUs {
			terms = append(terms, Term{Var: f.Packs[i], Coef: m.Cost * m.OrderMultiple})
		}
		lp.AddRow("budget", LE, p.Budget.InexactFloat64(), terms...)
	}
	for _, c := range p.Capacities {
		var terms []Term
		for _, sku := range c.SKUs {
			if i := p.Index(sku); i >= 0 {
				terms = append(terms, Term{Var: f.Packs[i], Coef: p.SKUs[i].OrderMultiple})
			}
		}
		name := "capacity"
		if c.Warehouse != "" {
			name += "." + c.Warehouse
		}
		lp.AddRow(name, LE, c.Headroom, terms...)
	}
	return f
}

// bigM bounds the quantity an order indicator switches on. Ordering beyond the
// rounded-up requirement only adds cost, so this bound never cuts the optimum.
func bigM(m constraints.SKUModel) float64 {
	if !math.IsInf(m.MaxQty, 1) {
		return math.Max(m.MaxQty, m.OrderMultiple)
	}
	return constraints.CeilToMultiple(math.Max(m.NetRequirement, m.MinQty), m.OrderMultiple) + m.OrderMultiple
}

// Quantities converts a solution point into order quantities per SKU.
func (f *Formulation) Quantities(p *constraints.Problem, x []float64) []float64 {
	q := make([]float64, len(p.SKUs))
	for i, m := range p.SKUs {
		q[i] = x[f.Packs[i]] * m.OrderMultiple
	}
	return q
}

// Point converts order quantities into a solution point, used to seed the
// solver with a heuristic plan.
func (f *Formulation) Point(p *constraints.Problem, q []float64) []float64 {
	x := make([]float64, len(f.Problem.Vars))
	for i, m := range p.SKUs {
		x[f.Packs[i]] = q[i] / m.OrderMultiple
		x[f.Short[i]] = math.Max(0, m.NetRequirement-q[i])
		if f.Setup[i] >= 0 && q[i] > 0 {
			x[f.Setup[i]] = 1
		}
	}
	return x
}
