// Package optimize formulates the replenishment decision as a linear or
// mixed-integer program and solves it through a pluggable Solver backend.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

// Sense is the relation of a constraint row.
type Sense int

const (
	LE Sense = iota // Σ a·x <= rhs
	GE              // Σ a·x >= rhs
	EQ              // Σ a·x == rhs
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "=="
	}
}

// Variable is one decision variable. Lower must be finite; Upper may be +Inf.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
	Cost    float64
}

// Term is one coefficient of a row.
type Term struct {
	Var  int
	Coef float64
}

// Row is a linear constraint.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimization over Vars subject to Rows.
type Problem struct {
	Vars []Variable
	Rows []Row
	// Hint is an optional known feasible point used as the first incumbent.
	Hint []float64
}

// AddVar appends a variable and returns its index.
func (p *Problem) AddVar(v Variable) int {
	p.Vars = append(p.Vars, v)
	return len(p.Vars) - 1
}

// AddRow appends a constraint row.
func (p *Problem) AddRow(name string, sense Sense, rhs float64, terms ...Term) {
	p.Rows = append(p.Rows, Row{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// Objective evaluates the cost of x.
func (p *Problem) Objective(x []float64) float64 {
	var total float64
	for j, v := range p.Vars {
		total += v.Cost * x[j]
	}
	return total
}

// Violation returns the name of the first bound or row x violates by more
// than tol, or "" when x is feasible.
func (p *Problem) Violation(x []float64, tol float64) string {
	if len(x) != len(p.Vars) {
		return "dimension"
	}
	for j, v := range p.Vars {
		if x[j] < v.Lower-tol || x[j] > v.Upper+tol {
			return v.Name
		}
		if v.Integer && math.Abs(x[j]-math.Round(x[j])) > tol {
			return v.Name
		}
	}
	for _, r := range p.Rows {
		var lhs float64
		for _, t := range r.Terms {
			lhs += t.Coef * x[t.Var]
		}
		scale := tol * math.Max(1, math.Abs(r.RHS))
		switch r.Sense {
		case LE:
			if lhs > r.RHS+scale {
				return r.Name
			}
		case GE:
			if lhs < r.RHS-scale {
				return r.Name
			}
		case EQ:
			if math.Abs(lhs-r.RHS) > scale {
				return r.Name
			}
		}
	}
	return ""
}

// Validate checks the problem shape.
func (p *Problem) Validate() error {
	for j, v := range p.Vars {
		if math.IsInf(v.Lower, 0) || math.IsNaN(v.Lower) {
			return fmt.Errorf("variable %d (%s): lower bound must be finite", j, v.Name)
		}
		if math.IsNaN(v.Upper) || math.IsNaN(v.Cost) || math.IsInf(v.Cost, 0) {
			return fmt.Errorf("variable %d (%s): invalid upper bound or cost", j, v.Name)
		}
	}
	for _, r := range p.Rows {
		if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
			return fmt.Errorf("row %s: rhs must be finite", r.Name)
		}
		for _, t := range r.Terms {
			if t.Var < 0 || t.Var >= len(p.Vars) {
				return fmt.Errorf("row %s: variable index %d out of range", r.Name, t.Var)
			}
		}
	}
	if p.Hint != nil && len(p.Hint) != len(p.Vars) {
		return errors.New("hint length does not match variables")
	}
	return nil
}

// withBounds returns a shallow copy of p with replaced variable bounds.
func (p *Problem) withBounds(lower, upper []float64) *Problem {
	vars := make([]Variable, len(p.Vars))
	copy(vars, p.Vars)
	for j := range vars {
		vars[j].Lower, vars[j].Upper = lower[j], upper[j]
	}
	return &Problem{Vars: vars, Rows: p.Rows}
}

// Solution is a backend result. X is nil when no point was found.
type Solution struct {
	Status    domain.SolverStatus
	X         []float64
	Objective float64
	Nodes     int
}

// Solver is a constrained-optimization backend.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
	Name() string
}
