package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const defaultSimplexTol = 1e-10

// feasTol is the absolute tolerance for presolve feasibility checks.
const feasTol = 1e-9

// SimplexSolver solves the continuous relaxation with gonum's simplex. Integer
// flags are ignored.
type SimplexSolver struct {
	Tol float64
}

// Name implements Solver.
func (s SimplexSolver) Name() string { return "simplex" }

// standardForm is p rewritten as min cᵀz s.t. Az = b, z >= 0 where
// x_j = lower_j + z_col(j) for active variables.
type standardForm struct {
	c       []float64
	a       *mat.Dense
	b       []float64
	col     []int     // original var -> column, -1 when fixed
	fixed   []float64 // value of each original var when col == -1
	nActive int
}

// Solve implements Solver. The gonum call cannot be interrupted; when ctx
// expires first Solve returns a time_limit solution without a point and the
// simplex goroutine runs on until it finishes, discarding its result. Callers
// must not start another solve on an expired context, so at most one such
// goroutine outlives each deadline.
func (s SimplexSolver) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	sf, status := standardize(p)
	if status != "" {
		return Solution{Status: status}, nil
	}

	x := make([]float64, len(p.Vars))
	finish := func(z []float64) Solution {
		for j := range p.Vars {
			if sf.col[j] < 0 {
				x[j] = sf.fixed[j]
			} else {
				x[j] = p.Vars[j].Lower + z[sf.col[j]]
			}
		}
		return Solution{Status: domain.StatusOptimal, X: x, Objective: p.Objective(x)}
	}

	if len(sf.b) == 0 {
		// No rows left: every active column sits at its lower bound.
		return finish(make([]float64, len(sf.c))), nil
	}

	tol := s.Tol
	if tol <= 0 {
		tol = defaultSimplexTol
	}

	type result struct {
		z   []float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()
		_, z, err := lp.Simplex(sf.c, sf.a, sf.b, tol, nil)
		done <- result{z: z, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Solution{Status: domain.StatusTimeLimit}, nil
	case res = <-done:
	}

	switch {
	case res.err == nil:
		return finish(res.z), nil
	case errors.Is(res.err, lp.ErrInfeasible):
		return Solution{Status: domain.StatusInfeasible}, nil
	case errors.Is(res.err, lp.ErrUnbounded):
		return Solution{Status: domain.StatusUnbounded}, nil
	case res.z != nil:
		// Numerical trouble after a feasible vertex was reached.
		sol := finish(res.z)
		sol.Status = domain.StatusFeasible
		return sol, nil
	}
	return Solution{}, fmt.Errorf("simplex: %w", res.err)
}

// standardize builds the standard form. A non-empty status means presolve
// already decided the outcome.
func standardize(p *Problem) (*standardForm, domain.SolverStatus) {
	n := len(p.Vars)
	sf := &standardForm{col: make([]int, n), fixed: make([]float64, n)}

	if n == 0 {
		// Nothing to decide; every row must hold at zero.
		for _, r := range p.Rows {
			if !holds(0, r.Sense, r.RHS) {
				return nil, domain.StatusInfeasible
			}
		}
		return sf, ""
	}

	used := make([]bool, n)
	for _, r := range p.Rows {
		for _, t := range r.Terms {
			if t.Coef != 0 {
				used[t.Var] = true
			}
		}
	}

	var costs []float64
	for j, v := range p.Vars {
		if v.Upper < v.Lower-feasTol {
			return nil, domain.StatusInfeasible
		}
		switch {
		case v.Upper-v.Lower <= feasTol:
			sf.col[j], sf.fixed[j] = -1, v.Lower
		case !used[j] && math.IsInf(v.Upper, 1):
			// A free-standing column goes to whichever bound its cost prefers.
			if v.Cost < 0 {
				return nil, domain.StatusUnbounded
			}
			sf.col[j], sf.fixed[j] = -1, v.Lower
		case !used[j] && v.Cost >= 0:
			sf.col[j], sf.fixed[j] = -1, v.Lower
		case !used[j]:
			sf.col[j], sf.fixed[j] = -1, v.Upper
		default:
			sf.col[j] = len(costs)
			costs = append(costs, v.Cost)
		}
	}
	sf.nActive = len(costs)

	type stdRow struct {
		coefs map[int]float64
		sense Sense
		rhs   float64
	}
	var rows []stdRow
	for _, r := range p.Rows {
		row := stdRow{coefs: make(map[int]float64), sense: r.Sense, rhs: r.RHS}
		for _, t := range r.Terms {
			j := t.Var
			if sf.col[j] < 0 {
				row.rhs -= t.Coef * sf.fixed[j]
				continue
			}
			row.rhs -= t.Coef * p.Vars[j].Lower
			row.coefs[sf.col[j]] += t.Coef
		}
		for k, v := range row.coefs {
			if v == 0 {
				delete(row.coefs, k)
			}
		}
		if len(row.coefs) == 0 {
			if !holds(0, row.sense, row.rhs) {
				return nil, domain.StatusInfeasible
			}
			continue
		}
		rows = append(rows, row)
	}
	for j, v := range p.Vars {
		if sf.col[j] >= 0 && !math.IsInf(v.Upper, 1) {
			rows = append(rows, stdRow{coefs: map[int]float64{sf.col[j]: 1}, sense: LE, rhs: v.Upper - v.Lower})
		}
	}

	var slacks int
	for _, r := range rows {
		if r.sense != EQ {
			slacks++
		}
	}
	m, cols := len(rows), sf.nActive+slacks
	if m == 0 {
		for _, c := range costs {
			if c < 0 {
				return nil, domain.StatusUnbounded
			}
		}
		sf.c = costs
		return sf, ""
	}
	sf.c = make([]float64, cols)
	copy(sf.c, costs)
	sf.a = mat.NewDense(m, cols, nil)
	sf.b = make([]float64, m)
	slack := sf.nActive
	for i, r := range rows {
		for k, v := range r.coefs {
			sf.a.Set(i, k, v)
		}
		switch r.sense {
		case LE:
			sf.a.Set(i, slack, 1)
			slack++
		case GE:
			sf.a.Set(i, slack, -1)
			slack++
		}
		sf.b[i] = r.rhs
	}
	return sf, ""
}

func holds(lhs float64, sense Sense, rhs float64) bool {
	switch sense {
	case LE:
		return lhs <= rhs+feasTol
	case GE:
		return lhs >= rhs-feasTol
	default:
		return math.Abs(lhs-rhs) <= feasTol
	}
}
