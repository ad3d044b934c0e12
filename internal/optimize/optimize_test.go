package optimize

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

func skuModel(name string, cost, penalty, net float64) constraints.SKUModel {
	return constraints.SKUModel{
		SKU:             name,
		UnitCost:        decimal.NewFromFloat(cost),
		Cost:            cost,
		StockoutPenalty: penalty,
		NetRequirement:  net,
		OrderMultiple:   1,
		MaxQty:          math.Inf(1),
	}
}

func budgetProblem() *constraints.Problem {
	budget := decimal.NewFromInt(400)
	return &constraints.Problem{
		Horizon: 7,
		SKUs: []constraints.SKUModel{
			skuModel("A", 10, 100, 30),
			skuModel("B", 5, 20, 40),
		},
		Budget: &budget,
	}
}

type stubSolver struct {
	sol Solution
	err error
}

func (s stubSolver) Name() string { return "stub" }

func (s stubSolver) Solve(context.Context, *Problem) (Solution, error) {
	return s.sol, s.err
}

func TestSimplexSolver(t *testing.T) {
	inf := math.Inf(1)
	tests := []struct {
		name   string
		build  func() *Problem
		status domain.SolverStatus
		x      []float64
		obj    float64
	}{
		{
			name: "textbook maximum",
			build: func() *Problem {
				p := &Problem{}
				x := p.AddVar(Variable{Name: "x", Upper: inf, Cost: -1})
				y := p.AddVar(Variable{Name: "y", Upper: inf, Cost: -1})
				p.AddRow("r1", LE, 4, Term{x, 1}, Term{y, 2})
				p.AddRow("r2", LE, 6, Term{x, 3}, Term{y, 1})
				return p
			},
			status: domain.StatusOptimal,
			x:      []float64{1.6, 1.2},
			obj:    -2.8,
		},
		{
			name: "bounds shift the cheaper variable",
			build: func() *Problem {
				p := &Problem{}
				x := p.AddVar(Variable{Name: "x", Lower: 2, Upper: 5, Cost: 1})
				y := p.AddVar(Variable{Name: "y", Upper: inf, Cost: 2})
				p.AddRow("cover", GE, 4, Term{x, 1}, Term{y, 1})
				return p
			},
			status: domain.StatusOptimal,
			x:      []float64{4, 0},
			obj:    4,
		},
		{
			name: "upper bound forces the expensive variable",
			build: func() *Problem {
				p := &Problem{}
				x := p.AddVar(Variable{Name: "x", Upper: 3, Cost: 1})
				y := p.AddVar(Variable{Name: "y", Upper: inf, Cost: 2})
				p.AddRow("cover", GE, 5, Term{x, 1}, Term{y, 1})
				return p
			},
			status: domain.StatusOptimal,
			x:      []float64{3, 2},
			obj:    7,
		},
		{
			name: "no rows",
			build: func() *Problem {
				p := &Problem{}
				p.AddVar(Variable{Name: "x", Lower: 1.5, Upper: inf, Cost: 3})
				return p
			},
			status: domain.StatusOptimal,
			x:      []float64{1.5},
			obj:    4.5,
		},
		{
			name: "infeasible",
			build: func() *Problem {
				p := &Problem{}
				x := p.AddVar(Variable{Name: "x", Upper: 1, Cost: 1})
				p.AddRow("need", GE, 3, Term{x, 1})
				return p
			},
			status: domain.StatusInfeasible,
		},
		{
			name: "unbounded",
			build: func() *Problem {
				p := &Problem{}
				x := p.AddVar(Variable{Name: "x", Upper: inf, Cost: -1})
				y := p.AddVar(Variable{Name: "y", Upper: inf})
				p.AddRow("gap", LE, 1, Term{x, 1}, Term{y, -1})
				return p
			},
			status: domain.StatusUnbounded,
		},
		{
			name: "free column with negative cost",
			build: func() *Problem {
				p := &Problem{}
				p.AddVar(Variable{Name: "x", Upper: inf, Cost: -1})
				return p
			},
			status: domain.StatusUnbounded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := SimplexSolver{}.Solve(context.Background(), tt.build())
			require.NoError(t, err)
			assert.Equal(t, tt.status, sol.Status)
			if tt.x == nil {
				return
			}
			require.Len(t, sol.X, len(tt.x))
			assert.InDeltaSlice(t, tt.x, sol.X, 1e-7)
			assert.InDelta(t, tt.obj, sol.Objective, 1e-7)
		})
	}
}

func TestProblemValidate(t *testing.T) {
	p := &Problem{}
	p.AddVar(Variable{Name: "x", Lower: math.Inf(-1), Upper: 1})
	assert.Error(t, p.Validate())

	p = &Problem{}
	p.AddVar(Variable{Name: "x", Upper: 1})
	p.AddRow("bad", LE, 1, Term{Var: 3, Coef: 1})
	assert.Error(t, p.Validate())

	_, err := SimplexSolver{}.Solve(context.Background(), p)
	assert.Error(t, err)
}

func TestProblemViolation(t *testing.T) {
	p := &Problem{}
	x := p.AddVar(Variable{Name: "x", Upper: 10, Integer: true})
	p.AddRow("cap", LE, 5, Term{x, 1})

	assert.Equal(t, "", p.Violation([]float64{5}, 1e-9))
	assert.Equal(t, "cap", p.Violation([]float64{6}, 1e-9))
	assert.Equal(t, "x", p.Violation([]float64{2.5}, 1e-9))
	assert.Equal(t, "dimension", p.Violation(nil, 1e-9))
}

func TestBranchAndBound(t *testing.T) {
	// max 5a + 4b + 3c over the integers; the LP relaxation is fractional.
	p := &Problem{}
	inf := math.Inf(1)
	a := p.AddVar(Variable{Name: "a", Upper: inf, Integer: true, Cost: -5})
	b := p.AddVar(Variable{Name: "b", Upper: inf, Integer: true, Cost: -4})
	c := p.AddVar(Variable{Name: "c", Upper: inf, Integer: true, Cost: -3})
	p.AddRow("r1", LE, 5, Term{a, 2}, Term{b, 3}, Term{c, 1})
	p.AddRow("r2", LE, 11, Term{a, 4}, Term{b, 1}, Term{c, 2})
	p.AddRow("r3", LE, 8, Term{a, 3}, Term{b, 4}, Term{c, 2})

	sol, err := NewBranchAndBound(0).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOptimal, sol.Status)
	assert.InDelta(t, -13, sol.Objective, 1e-7)
	assert.Equal(t, "", p.Violation(sol.X, 1e-7))
	assert.Greater(t, sol.Nodes, 0)
}

// expiringLP returns a fractional relaxation and lets the deadline pass
// while doing so.
type expiringLP struct {
	cancel context.CancelFunc
	calls  int
}

func (l *expiringLP) Name() string { return "expiring" }

func (l *expiringLP) Solve(context.Context, *Problem) (Solution, error) {
	l.calls++
	l.cancel()
	return Solution{Status: domain.StatusOptimal, X: []float64{2.5}, Objective: 2.5}, nil
}

func TestBranchAndBoundLimits(t *testing.T) {
	p := &Problem{}
	x := p.AddVar(Variable{Name: "x", Upper: 10, Integer: true, Cost: 1})
	p.AddRow("need", GE, 2.5, Term{x, 1})

	t.Run("hint survives a node limit", func(t *testing.T) {
		hinted := *p
		hinted.Hint = []float64{4}
		bb := &BranchAndBound{LP: stubSolver{sol: Solution{Status: domain.StatusTimeLimit}}, MaxNodes: 1}
		sol, err := bb.Solve(context.Background(), &hinted)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTimeLimit, sol.Status)
		assert.Equal(t, []float64{4}, sol.X)
	})

	t.Run("cancelled before the first node", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sol, err := NewBranchAndBound(10).Solve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTimeLimit, sol.Status)
		assert.Nil(t, sol.X)
	})

	t.Run("no new node after the deadline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		lp := &expiringLP{cancel: cancel}
		sol, err := (&BranchAndBound{LP: lp, MaxNodes: 100}).Solve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 1, lp.calls)
		assert.Equal(t, 1, sol.Nodes)
		assert.Equal(t, domain.StatusTimeLimit, sol.Status)
		assert.Equal(t, []float64{3}, sol.X, "rounded relaxation kept as incumbent")
	})

	t.Run("infeasible", func(t *testing.T) {
		q := &Problem{}
		y := q.AddVar(Variable{Name: "y", Upper: 1, Integer: true, Cost: 1})
		q.AddRow("need", GE, 1.5, Term{y, 1})
		sol, err := NewBranchAndBound(10).Solve(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInfeasible, sol.Status)
	})
}

func TestFormulate(t *testing.T) {
	p := budgetProblem()
	p.SKUs[0].OrderingCost = 15
	p.SKUs[1].MinQty = 10
	p.Capacities = []constraints.CapacityLimit{{Warehouse: "north", Headroom: 60, SKUs: []string{"A", "B", "Z"}}}

	f := Formulate(p, true)
	// Two columns per SKU plus an order indicator each: A for its ordering
	// cost, B for its minimum.
	assert.Len(t, f.Problem.Vars, 6)
	assert.GreaterOrEqual(t, f.Setup[0], 0)
	assert.GreaterOrEqual(t, f.Setup[1], 0)
	assert.Equal(t, 0.0, f.Problem.Vars[f.Packs[1]].Lower)

	var names []string
	for _, r := range f.Problem.Rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"A.demand", "A.setup", "B.demand", "B.setup", "B.minimum", "budget", "capacity.north"}, names)
	assert.Len(t, f.Problem.Rows[6].Terms, 2)

	x := f.Point(p, []float64{20, 10})
	assert.Equal(t, "", f.Problem.Violation(x, 1e-9))
	assert.Equal(t, []float64{20, 10}, f.Quantities(p, x))
	assert.Equal(t, 1.0, x[f.Setup[0]])

	assert.Equal(t, "", f.Problem.Violation(f.Point(p, []float64{20, 0}), 1e-9), "ordering nothing meets the minimum")
	assert.Equal(t, "B.minimum", f.Problem.Violation(f.Point(p, []float64{20, 5}), 1e-9))

	relaxed := Formulate(p, false)
	assert.Len(t, relaxed.Problem.Vars, 4)
	assert.Equal(t, 10.0, relaxed.Problem.Vars[relaxed.Packs[1]].Lower)

	p.SKUs[1].NetRequirement = 0
	relaxed = Formulate(p, false)
	assert.Equal(t, 0.0, relaxed.Problem.Vars[relaxed.Packs[1]].Lower, "no requirement, no forced minimum")
}

func TestOptimizerMinimumOnlyWhenOrdering(t *testing.T) {
	for _, backend := range []string{settings.BackendSimplex, settings.BackendMILP, settings.BackendGreedy} {
		t.Run(backend, func(t *testing.T) {
			s := settings.Default()
			s.SolverBackend = backend
			p := budgetProblem()
			p.SKUs[0].NetRequirement = 0
			p.SKUs[0].MinQty = 20
			p.SKUs[1].MinQty = 25

			plan, err := New(s, NewSolver(s)).Optimize(context.Background(), p, 0)
			require.NoError(t, err)
			require.Len(t, plan.Quantities, 2)
			assert.InDelta(t, 0, plan.Quantities[0], 1e-6, "nothing needed, nothing ordered")
			assert.InDelta(t, 40, plan.Quantities[1], 1e-6)
		})
	}
}

func TestGreedy(t *testing.T) {
	t.Run("fills by penalty per unit cost within budget", func(t *testing.T) {
		q := Greedy(budgetProblem())
		assert.Equal(t, []float64{30, 20}, q)
	})

	t.Run("skips skus whose penalty does not cover cost", func(t *testing.T) {
		p := budgetProblem()
		p.SKUs[1].StockoutPenalty = 5
		assert.Equal(t, []float64{30, 0}, Greedy(p))
	})

	t.Run("whole packs only", func(t *testing.T) {
		p := budgetProblem()
		p.SKUs[0].OrderMultiple = 12
		q := Greedy(p)
		assert.Equal(t, 36.0, q[0])
		assert.Equal(t, 8.0, q[1])
	})

	t.Run("minimums over budget", func(t *testing.T) {
		p := budgetProblem()
		p.SKUs[0].MinQty = 50
		assert.Nil(t, Greedy(p))
	})

	t.Run("minimum raises a small order", func(t *testing.T) {
		p := budgetProblem()
		p.SKUs[0].NetRequirement = 4
		p.SKUs[0].MinQty = 12
		p.SKUs[1].MinQty = 20
		p.SKUs[1].NetRequirement = 0
		assert.Equal(t, []float64{12, 0}, Greedy(p))
	})

	t.Run("minimum that no longer fits orders nothing", func(t *testing.T) {
		p := budgetProblem()
		p.SKUs[1].MinQty = 20
		// A spends 300, leaving room for 18 units of B, short of its minimum.
		b := decimal.NewFromInt(390)
		p.Budget = &b
		assert.Equal(t, []float64{30, 0}, Greedy(p))
	})

	t.Run("capacity headroom", func(t *testing.T) {
		p := budgetProblem()
		p.Budget = nil
		p.Capacities = []constraints.CapacityLimit{{Headroom: 45, SKUs: []string{"A", "B"}}}
		assert.Equal(t, []float64{30, 15}, Greedy(p))
	})
}

func TestPlanCost(t *testing.T) {
	p := budgetProblem()
	p.SKUs[0].OrderingCost = 7
	assert.InDelta(t, 800.0, PlanCost(p, []float64{30, 20}, false), 1e-9)
	assert.InDelta(t, 807.0, PlanCost(p, []float64{30, 20}, true), 1e-9)
}

func TestOptimizerSimplex(t *testing.T) {
	s := settings.Default()
	o := New(s, NewSolver(s))

	plan, err := o.Optimize(context.Background(), budgetProblem(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOptimal, plan.Status)
	assert.False(t, plan.Degraded)
	assert.Equal(t, "simplex", plan.Backend)
	assert.InDeltaSlice(t, []float64{30, 20}, plan.Quantities, 1e-6)
	assert.InDelta(t, 800, plan.Objective, 1e-6)
}

func TestOptimizerMILP(t *testing.T) {
	s := settings.Default()
	s.SolverBackend = settings.BackendMILP
	o := New(s, NewSolver(s))

	p := budgetProblem()
	p.SKUs[0].OrderMultiple = 5
	p.SKUs[0].NetRequirement = 23

	plan, err := o.Optimize(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOptimal, plan.Status)
	assert.Equal(t, "milp", plan.Backend)
	assert.InDeltaSlice(t, []float64{25, 30}, plan.Quantities, 1e-6)
	assert.InDelta(t, 600, plan.Objective, 1e-6)
}

func TestOptimizerGreedyBackend(t *testing.T) {
	s := settings.Default()
	s.SolverBackend = settings.BackendGreedy
	require.Nil(t, NewSolver(s))

	plan, err := New(s, nil).Optimize(context.Background(), budgetProblem(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFeasible, plan.Status)
	assert.Equal(t, "greedy", plan.Backend)
	assert.Equal(t, []float64{30, 20}, plan.Quantities)
	assert.Nil(t, plan.Warning)
}

func TestOptimizerOutcomes(t *testing.T) {
	s := settings.Default()

	t.Run("time limit without a point falls back to greedy", func(t *testing.T) {
		o := New(s, stubSolver{sol: Solution{Status: domain.StatusTimeLimit}})
		plan, err := o.Optimize(context.Background(), budgetProblem(), 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTimeLimit, plan.Status)
		assert.True(t, plan.Degraded)
		assert.Equal(t, []float64{30, 20}, plan.Quantities)

		var timeout *domain.SolverTimeoutError
		require.True(t, errors.As(plan.Warning, &timeout))
		assert.Equal(t, "stub", timeout.Backend)
		assert.Equal(t, 50*time.Millisecond, timeout.Limit)
	})

	t.Run("time limit keeps the incumbent", func(t *testing.T) {
		x := []float64{2, 10, 4, 0}
		o := New(s, stubSolver{sol: Solution{Status: domain.StatusTimeLimit, X: x, Objective: 900}})
		plan, err := o.Optimize(context.Background(), budgetProblem(), time.Second)
		require.NoError(t, err)
		assert.True(t, plan.Degraded)
		assert.Equal(t, []float64{2, 4}, plan.Quantities)
		assert.Error(t, plan.Warning)
	})

	t.Run("cancelled caller", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		o := New(s, stubSolver{sol: Solution{Status: domain.StatusTimeLimit}})
		_, err := o.Optimize(ctx, budgetProblem(), time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("infeasible", func(t *testing.T) {
		o := New(s, stubSolver{sol: Solution{Status: domain.StatusInfeasible}})
		_, err := o.Optimize(context.Background(), budgetProblem(), 0)
		var infeasible *domain.InfeasibleConstraintsError
		assert.True(t, errors.As(err, &infeasible))
	})

	t.Run("unbounded", func(t *testing.T) {
		o := New(s, stubSolver{sol: Solution{Status: domain.StatusUnbounded}})
		_, err := o.Optimize(context.Background(), budgetProblem(), 0)
		assert.ErrorIs(t, err, ErrUnbounded)
	})

	t.Run("backend error", func(t *testing.T) {
		boom := errors.New("boom")
		o := New(s, stubSolver{err: boom})
		_, err := o.Optimize(context.Background(), budgetProblem(), 0)
		assert.ErrorIs(t, err, boom)
	})
}
