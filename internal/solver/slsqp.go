package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// SLSQP is a sequential local descent on the penalized scalar objective:
// central finite-difference gradients, backtracking line search, and
// projection onto the delta-v equality after every step. It starts from the
// equal-split guess and converges when the objective change drops below the
// configured tolerance.
type SLSQP struct {
	maxIterations int
	tolerance     float64
	fdStep        float64
}

// NewSLSQP validates the adapter parameters at construction time.
func NewSLSQP(maxIterations int, tolerance, fdStep float64) (*SLSQP, error) {
	if maxIterations < 1 {
		return nil, fmt.Errorf("slsqp: max_iterations must be positive, got %d", maxIterations)
	}
	if tolerance <= 0 {
		return nil, fmt.Errorf("slsqp: tolerance must be positive, got %g", tolerance)
	}
	if fdStep <= 0 {
		return nil, fmt.Errorf("slsqp: finite_difference_step must be positive, got %g", fdStep)
	}
	return &SLSQP{maxIterations: maxIterations, tolerance: tolerance, fdStep: fdStep}, nil
}

func (s *SLSQP) Name() string { return "slsqp" }

// Solve runs the descent from the equal-split initial guess.
func (s *SLSQP) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	ev := &counter{inner: eval}
	lower, upper := p.Bounds()

	x := p.EqualSplit()
	projectFeasible(x, lower, upper, p.TotalDeltaV)

	best, iters, converged, err := localDescent(ctx, ev, lower, upper, p.TotalDeltaV, x, s.maxIterations, s.tolerance, s.fdStep)
	if err != nil {
		return nil, err
	}

	message := "slsqp converged"
	if !converged {
		message = "slsqp reached iteration cap"
	}
	return finish(p, ev, best, true, message, iters, ev.n, start)
}

// localDescent performs projected gradient descent and returns the best
// point, the iterations used, and whether the tolerance criterion fired.
// Shared by the slsqp and basin_hopping adapters.
func localDescent(ctx context.Context, ev *counter, lower, upper []float64, total float64, start []float64, maxIter int, tol, fdStep float64) ([]float64, int, bool, error) {
	x := clone(start)
	if err := ctx.Err(); err != nil {
		return x, 0, false, err
	}
	fx, err := ev.score(x)
	if err != nil {
		return nil, 0, false, err
	}

	grad := make([]float64, len(x))
	iters := 0
	for ; iters < maxIter; iters++ {
		if err := ctx.Err(); err != nil {
			return x, iters, false, err
		}

		if err := gradient(ev, x, fdStep, grad); err != nil {
			return nil, iters, false, err
		}
		norm := floats.Norm(grad, 2)
		if norm == 0 {
			return x, iters, true, nil
		}

		// Backtracking line search along the negative gradient, step sized
		// relative to the delta-v scale.
		alpha := total / norm
		improved := false
		for range 30 {
			cand := clone(x)
			floats.AddScaledTo(cand, x, -alpha, grad)
			projectFeasible(cand, lower, upper, total)
			fc, err := ev.score(cand)
			if err != nil {
				return nil, iters, false, err
			}
			if fc < fx {
				if math.Abs(fx-fc) < tol {
					return cand, iters + 1, true, nil
				}
				x, fx = cand, fc
				improved = true
				break
			}
			alpha *= 0.5
		}
		if !improved {
			// Line search exhausted without progress: local minimum.
			return x, iters + 1, true, nil
		}
	}
	return x, iters, false, nil
}

// gradient fills grad with central finite differences of the penalized
// objective at x.
func gradient(ev *counter, x []float64, fdStep float64, grad []float64) error {
	probe := clone(x)
	for i := range x {
		h := fdStep * math.Max(1, math.Abs(x[i]))
		probe[i] = x[i] + h
		fp, err := ev.score(probe)
		if err != nil {
			return err
		}
		probe[i] = x[i] - h
		fm, err := ev.score(probe)
		if err != nil {
			return err
		}
		probe[i] = x[i]
		grad[i] = (fp - fm) / (2 * h)
		// Infinite scores come from degenerate candidates; treat the
		// direction as uninformative rather than propagating Inf.
		if math.IsInf(grad[i], 0) || math.IsNaN(grad[i]) {
			grad[i] = 0
		}
	}
	return nil
}
