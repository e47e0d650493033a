// Package lopf implements the iterative feasibility solver: a linearized
// optimal power flow refined over repeated solves until line loadings settle.
package lopf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

// Term is one coefficient of a constraint row.
type Term struct {
	Col   int
	Coeff float64
}

// Row is a sparse constraint row: terms · x (=|<=) RHS.
type Row struct {
	Terms []Term
	RHS   float64
}

// Problem is a general-form linear program over free variables:
//
//	minimize  Obj · x
//	st        Eq rows hold with equality, Ub rows with <=.
//
// Variable bounds are expressed as Ub rows.
type Problem struct {
	NumVars int
	Obj     []float64
	Eq      []Row
	Ub      []Row
}

// Result carries the primal solution of one solve.
type Result struct {
	Objective float64
	X         []float64
}

// Backend is the external linear-programming capability. The solve loop does
// not retry a backend failure; infeasibility and unavailability surface
// unchanged.
type Backend interface {
	Name() string
	Solve(p *Problem) (*Result, error)
}

// NewBackend resolves a backend by name. The empty name selects the default
// simplex backend; unknown names fail with ErrSolverUnavailable.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "simplex":
		return &simplexBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", grid.ErrSolverUnavailable, name)
	}
}

// simplexBackend solves via gonum's dense simplex after converting the
// general form to standard form.
type simplexBackend struct{}

func (b *simplexBackend) Name() string { return "simplex" }

func (b *simplexBackend) Solve(p *Problem) (*Result, error) {
	n := p.NumVars
	if n == 0 {
		return &Result{}, nil
	}

	var g mat.Matrix
	var h []float64
	if len(p.Ub) > 0 {
		gd := mat.NewDense(len(p.Ub), n, nil)
		h = make([]float64, len(p.Ub))
		for i, row := range p.Ub {
			for _, t := range row.Terms {
				gd.Set(i, t.Col, gd.At(i, t.Col)+t.Coeff)
			}
			h[i] = row.RHS
		}
		g = gd
	}
	var a mat.Matrix
	var bEq []float64
	if len(p.Eq) > 0 {
		ad := mat.NewDense(len(p.Eq), n, nil)
		bEq = make([]float64, len(p.Eq))
		for i, row := range p.Eq {
			for _, t := range row.Terms {
				ad.Set(i, t.Col, ad.At(i, t.Col)+t.Coeff)
			}
			bEq[i] = row.RHS
		}
		a = ad
	}

	cStd, aStd, bStd := lp.Convert(p.Obj, g, h, a, bEq)
	opt, xStd, err := lp.Simplex(cStd, aStd, bStd, 1e-10, nil)
	if err != nil {
		switch err {
		case lp.ErrInfeasible:
			return nil, fmt.Errorf("%w: %v", grid.ErrInfeasibleProblem, err)
		case lp.ErrUnbounded:
			return nil, fmt.Errorf("linear program unbounded: %v", err)
		default:
			// Numerical failures are solve errors, not a missing capability.
			return nil, fmt.Errorf("simplex failed: %v", err)
		}
	}

	// Convert splits every free variable x into x⁺ − x⁻; recover the original
	// ordering from the first 2n standard columns.
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = xStd[i] - xStd[n+i]
	}
	return &Result{Objective: opt, X: x}, nil
}
