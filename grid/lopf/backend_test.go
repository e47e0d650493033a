package lopf

import (
	"errors"
	"math"
	"testing"

	"github.com/gridflow-sim/gridflow-sim/grid"
)

func TestNewBackend_Resolution(t *testing.T) {
	b, err := NewBackend("")
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if b.Name() != "simplex" {
		t.Errorf("default backend is %q, want simplex", b.Name())
	}

	if _, err := NewBackend("simplex"); err != nil {
		t.Errorf("simplex backend: %v", err)
	}

	_, err = NewBackend("cplex")
	if !errors.Is(err, grid.ErrSolverUnavailable) {
		t.Fatalf("got %v, want ErrSolverUnavailable", err)
	}
}

func TestSimplexBackend_SolvesBoundedMinimum(t *testing.T) {
	// minimize x subject to x >= 2, expressed as -x <= -2 over a free x.
	p := &Problem{
		NumVars: 1,
		Obj:     []float64{1},
		Ub: []Row{
			{Terms: []Term{{0, -1}}, RHS: -2},
		},
	}
	b, _ := NewBackend("simplex")
	res, err := b.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(res.Objective-2) > 1e-9 {
		t.Errorf("objective = %f, want 2", res.Objective)
	}
	if math.Abs(res.X[0]-2) > 1e-9 {
		t.Errorf("x = %f, want 2", res.X[0])
	}
}

func TestSimplexBackend_EqualityAndCostOrdering(t *testing.T) {
	// minimize x + 3y subject to x + y = 5, x <= 2, x,y >= 0.
	p := &Problem{
		NumVars: 2,
		Obj:     []float64{1, 3},
		Eq: []Row{
			{Terms: []Term{{0, 1}, {1, 1}}, RHS: 5},
		},
		Ub: []Row{
			{Terms: []Term{{0, -1}}, RHS: 0},
			{Terms: []Term{{1, -1}}, RHS: 0},
			{Terms: []Term{{0, 1}}, RHS: 2},
		},
	}
	b, _ := NewBackend("simplex")
	res, err := b.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(res.X[0]-2) > 1e-9 || math.Abs(res.X[1]-3) > 1e-9 {
		t.Errorf("x = %v, want [2 3]", res.X)
	}
	if math.Abs(res.Objective-11) > 1e-9 {
		t.Errorf("objective = %f, want 11", res.Objective)
	}
}

func TestSimplexBackend_InfeasibleSurfacesTyped(t *testing.T) {
	// x <= 1 and x >= 2 cannot both hold.
	p := &Problem{
		NumVars: 1,
		Obj:     []float64{1},
		Ub: []Row{
			{Terms: []Term{{0, 1}}, RHS: 1},
			{Terms: []Term{{0, -1}}, RHS: -2},
		},
	}
	b, _ := NewBackend("simplex")
	_, err := b.Solve(p)
	if !errors.Is(err, grid.ErrInfeasibleProblem) {
		t.Fatalf("got %v, want ErrInfeasibleProblem", err)
	}
}

func TestSimplexBackend_EmptyProblem(t *testing.T) {
	b, _ := NewBackend("simplex")
	res, err := b.Solve(&Problem{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Objective != 0 {
		t.Errorf("objective = %f, want 0", res.Objective)
	}
}
