package solver

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/stageopt/internal/rocket"
)

func TestClampVector(t *testing.T) {
	dv := []float64{-10, 50, 200}
	clampVector(dv, []float64{0, 0, 0}, []float64{100, 100, 100})

	want := []float64{0, 50, 100}
	for i := range dv {
		if dv[i] != want[i] {
			t.Errorf("Component %d: expected %g, got %g", i, want[i], dv[i])
		}
	}
}

func TestProjectFeasibleRestoresTotal(t *testing.T) {
	tests := []struct {
		name string
		dv   []float64
	}{
		{"sum too small", []float64{1500, 1500}},
		{"sum too large", []float64{6000, 6000}},
		{"already feasible", []float64{4000, 5000}},
		{"below lower bounds", []float64{100, 10}},
	}

	lower := []float64{1350, 90}
	upper := []float64{7200, 8100}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dv := clone(tt.dv)
			projectFeasible(dv, lower, upper, 9000)

			if sum := floats.Sum(dv); math.Abs(sum-9000) > 1e-9 {
				t.Errorf("Projected sum %g, expected 9000", sum)
			}
		})
	}
}

func TestProjectFeasibleResetsDegenerateCandidate(t *testing.T) {
	dv := []float64{-5000, -4000}
	projectFeasible(dv, []float64{-9000, -9000}, []float64{9000, 9000}, 9000)

	if sum := floats.Sum(dv); math.Abs(sum-9000) > 1e-9 {
		t.Errorf("Degenerate candidate not repaired, sum is %g", sum)
	}
}

func TestRandomCandidateIsFeasible(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	lower := []float64{1350, 90}
	upper := []float64{7200, 8100}

	for range 100 {
		dv := randomCandidate(rng, lower, upper, 9000)
		if sum := floats.Sum(dv); math.Abs(sum-9000) > 1e-9 {
			t.Fatalf("Candidate sum %g, expected 9000", sum)
		}
	}
}

func TestSeedPopulationStartsFromEqualSplit(t *testing.T) {
	p, err := rocket.New([]rocket.Stage{
		{ISP: 300, Epsilon: 0.06, MinFraction: 0.15, MaxFraction: 0.80},
		{ISP: 348, Epsilon: 0.04, MinFraction: 0.01, MaxFraction: 0.90},
	}, 9000)
	if err != nil {
		t.Fatalf("Failed to build problem: %v", err)
	}

	pop := seedPopulation(rand.New(rand.NewSource(2)), p, 10)
	if len(pop) != 10 {
		t.Fatalf("Expected 10 candidates, got %d", len(pop))
	}
	for i, v := range pop[0] {
		if math.Abs(v-4500) > 1e-9 {
			t.Errorf("Seed candidate component %d is %g, expected equal split 4500", i, v)
		}
	}
	for i, ind := range pop {
		if sum := floats.Sum(ind); math.Abs(sum-9000) > 1e-9 {
			t.Errorf("Candidate %d sums to %g, expected 9000", i, sum)
		}
	}
}

func TestDiversity(t *testing.T) {
	collapsed := [][]float64{{4500, 4500}, {4500, 4500}, {4500, 4500}}
	if d := diversity(collapsed); d != 0 {
		t.Errorf("Collapsed population diversity is %g, expected 0", d)
	}

	spread := [][]float64{{1350, 7650}, {4500, 4500}, {7200, 1800}}
	d := diversity(spread)
	if d <= 0 || d > 1 {
		t.Errorf("Spread population diversity %g outside (0, 1]", d)
	}

	if d := diversity([][]float64{{4500, 4500}}); d != 0 {
		t.Errorf("Single-member population diversity is %g, expected 0", d)
	}
}

func TestArgmin(t *testing.T) {
	if got := argmin([]float64{3, 1, 2}); got != 1 {
		t.Errorf("argmin returned %d, expected 1", got)
	}
	if got := argmin([]float64{math.Inf(1), 5, math.Inf(1)}); got != 1 {
		t.Errorf("argmin with infinities returned %d, expected 1", got)
	}
}
