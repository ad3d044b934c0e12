package optimize

import (
	"context"
	"math"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const (
	defaultMaxNodes = 5000
	integralityTol  = 1e-6
)

// BranchAndBound solves mixed-integer problems by depth-first branch and bound
// over an LP backend. It stops at the context deadline or after MaxNodes LP
// solves and then reports time_limit with the best incumbent, if any.
type BranchAndBound struct {
	LP       Solver
	MaxNodes int
}

// NewBranchAndBound returns a branch and bound solver over gonum's simplex.
func NewBranchAndBound(maxNodes int) *BranchAndBound {
	return &BranchAndBound{LP: SimplexSolver{}, MaxNodes: maxNodes}
}

// Name implements Solver.
func (bb *BranchAndBound) Name() string { return "milp" }

type node struct {
	lower, upper []float64
}

// Solve implements Solver.
func (bb *BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{}, err
	}
	lpSolver := bb.LP
	if lpSolver == nil {
		lpSolver = SimplexSolver{}
	}
	maxNodes := bb.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}

	var (
		best    []float64
		bestObj = math.Inf(1)
	)
	accept := func(x []float64) {
		x = snapIntegers(p, x)
		if p.Violation(x, 1e-7) != "" {
			return
		}
		if obj := p.Objective(x); obj < bestObj {
			best, bestObj = x, obj
		}
	}
	if p.Hint != nil {
		accept(append([]float64(nil), p.Hint...))
	}

	root := node{lower: make([]float64, len(p.Vars)), upper: make([]float64, len(p.Vars))}
	for j, v := range p.Vars {
		root.lower[j], root.upper[j] = v.Lower, v.Upper
		if v.Integer {
			root.lower[j] = math.Ceil(v.Lower - integralityTol)
			root.upper[j] = math.Floor(v.Upper + integralityTol)
		}
	}

	stack := []node{root}
	nodes := 0
	limited := false
	for len(stack) > 0 {
		// No new LP on an expired context: the abandoned one may still run.
		if ctx.Err() != nil || nodes >= maxNodes {
			limited = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		sol, err := lpSolver.Solve(ctx, p.withBounds(nd.lower, nd.upper))
		if err != nil {
			return Solution{}, err
		}
		switch sol.Status {
		case domain.StatusInfeasible:
			continue
		case domain.StatusUnbounded:
			if nodes == 1 {
				return Solution{Status: domain.StatusUnbounded, Nodes: nodes}, nil
			}
			continue
		case domain.StatusTimeLimit:
			limited = true
		}
		if limited {
			break
		}
		if sol.Objective >= bestObj-1e-9*math.Max(1, math.Abs(bestObj)) {
			continue
		}

		j := mostFractional(p, sol.X)
		if j < 0 {
			accept(sol.X)
			continue
		}
		accept(roundUp(p, sol.X))

		v := sol.X[j]
		down := node{lower: nd.lower, upper: append([]float64(nil), nd.upper...)}
		down.upper[j] = math.Floor(v)
		up := node{lower: append([]float64(nil), nd.lower...), upper: nd.upper}
		up.lower[j] = math.Ceil(v)
		// Depth-first, nearer branch on top.
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	out := Solution{X: best, Nodes: nodes}
	if best != nil {
		out.Objective = bestObj
	}
	switch {
	case limited:
		out.Status = domain.StatusTimeLimit
	case best != nil:
		out.Status = domain.StatusOptimal
	default:
		out.Status = domain.StatusInfeasible
	}
	return out, nil
}

func mostFractional(p *Problem, x []float64) int {
	idx, worst := -1, integralityTol
	for j, v := range p.Vars {
		if !v.Integer {
			continue
		}
		frac := math.Abs(x[j] - math.Round(x[j]))
		if frac > worst {
			idx, worst = j, frac
		}
	}
	return idx
}

// roundUp rounds every integer variable up, a cheap incumbent for covering
// problems where more stock never breaks the demand rows.
func roundUp(p *Problem, x []float64) []float64 {
	out := append([]float64(nil), x...)
	for j, v := range p.Vars {
		if v.Integer {
			out[j] = math.Ceil(out[j] - integralityTol)
		}
	}
	return out
}

func snapIntegers(p *Problem, x []float64) []float64 {
	for j, v := range p.Vars {
		if v.Integer && math.Abs(x[j]-math.Round(x[j])) <= integralityTol {
			x[j] = math.Round(x[j])
		}
	}
	return x
}
