package optimize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// ErrUnbounded is returned when the backend reports an unbounded objective.
var ErrUnbounded = errors.New("optimization problem is unbounded")

// RawPlan is the unvalidated solver output, aligned with Problem.SKUs.
type RawPlan struct {
	Quantities []float64
	Objective  float64
	Status     domain.SolverStatus
	Degraded   bool
	Backend    string
	Nodes      int
	// Warning is set to a *domain.SolverTimeoutError on a time-limited solve.
	Warning error
}

// Optimizer solves planning problems with one backend.
type Optimizer struct {
	settings settings.Settings
	solver   Solver // nil selects the greedy heuristic
}

// NewSolver returns the backend named by s.SolverBackend, or nil for greedy.
func NewSolver(s settings.Settings) Solver {
	switch s.SolverBackend {
	case settings.BackendMILP:
		return NewBranchAndBound(s.MaxNodes)
	case settings.BackendGreedy:
		return nil
	default:
		return SimplexSolver{}
	}
}

// New creates an optimizer. A nil solver uses the greedy heuristic.
func New(s settings.Settings, solver Solver) *Optimizer {
	return &Optimizer{settings: s, solver: solver}
}

// Optimize solves p within limit (0 means no limit). Infeasible problems
// return *domain.InfeasibleConstraintsError and unbounded ones ErrUnbounded;
// a time-limited solve returns the best plan found with Degraded set.
func (o *Optimizer) Optimize(ctx context.Context, p *constraints.Problem, limit time.Duration) (RawPlan, error) {
	integer := o.settings.IntegerOrders || o.settings.SolverBackend == settings.BackendMILP
	if o.solver == nil {
		return o.greedy(p, integer, "greedy", nil)
	}

	f := Formulate(p, integer)
	if integer {
		if q := Greedy(p); q != nil {
			f.Problem.Hint = f.Point(p, q)
		}
	}

	solveCtx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	start := time.Now()
	sol, err := o.solver.Solve(solveCtx, f.Problem)
	if err != nil {
		return RawPlan{}, fmt.Errorf("%s solver: %w", o.solver.Name(), err)
	}
	log.Debug().
		Str("backend", o.solver.Name()).
		Str("status", string(sol.Status)).
		Int("skus", len(p.SKUs)).
		Int("nodes", sol.Nodes).
		Dur("elapsed", time.Since(start)).
		Msg("solve finished")

	switch sol.Status {
	case domain.StatusInfeasible:
		return RawPlan{}, &domain.InfeasibleConstraintsError{
			Constraint: "solver",
			Reason:     fmt.Sprintf("%s backend proved the constraint set infeasible", o.solver.Name()),
		}
	case domain.StatusUnbounded:
		return RawPlan{}, ErrUnbounded
	case domain.StatusTimeLimit:
		if ctx.Err() != nil {
			// The caller gave up; this is not a solver time limit.
			return RawPlan{}, ctx.Err()
		}
		warning := &domain.SolverTimeoutError{Limit: limit, Backend: o.solver.Name()}
		if sol.X == nil {
			log.Warn().Str("backend", o.solver.Name()).Dur("limit", limit).Msg("solver timed out without a solution; using greedy plan")
			return o.greedy(p, integer, o.solver.Name(), warning)
		}
		return RawPlan{
			Quantities: f.Quantities(p, sol.X),
			Objective:  sol.Objective,
			Status:     domain.StatusTimeLimit,
			Degraded:   true,
			Backend:    o.solver.Name(),
			Nodes:      sol.Nodes,
			Warning:    warning,
		}, nil
	}

	return RawPlan{
		Quantities: f.Quantities(p, sol.X),
		Objective:  sol.Objective,
		Status:     sol.Status,
		Degraded:   sol.Status != domain.StatusOptimal,
		Backend:    o.solver.Name(),
		Nodes:      sol.Nodes,
	}, nil
}

func (o *Optimizer) greedy(p *constraints.Problem, integer bool, backend string, warning *domain.SolverTimeoutError) (RawPlan, error) {
	q := Greedy(p)
	if q == nil {
		return RawPlan{}, &domain.InfeasibleConstraintsError{Constraint: "greedy", Reason: "supplier minimums do not fit budget or capacity"}
	}
	plan := RawPlan{
		Quantities: q,
		Objective:  PlanCost(p, q, integer),
		Status:     domain.StatusFeasible,
		Backend:    backend,
	}
	if warning != nil {
		plan.Status, plan.Degraded, plan.Warning = domain.StatusTimeLimit, true, warning
	}
	return plan, nil
}
