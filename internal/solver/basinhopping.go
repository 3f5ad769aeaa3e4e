package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// BasinHopping alternates local descent with random perturbation restarts,
// accepting uphill hops with Metropolis probability exp(-delta/T).
type BasinHopping struct {
	iterations int
	stepSize   float64
	temperature float64

	localIterations int
	tolerance       float64
	fdStep          float64

	seed int64
}

// NewBasinHopping validates the adapter parameters at construction time.
// stepSize is a fraction of the total delta-v used to scale perturbations.
func NewBasinHopping(iterations int, stepSize, temperature float64, localIterations int, tolerance, fdStep float64, seed int64) (*BasinHopping, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("basin_hopping: n_iterations must be positive, got %d", iterations)
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("basin_hopping: step_size must be positive, got %g", stepSize)
	}
	if temperature <= 0 {
		return nil, fmt.Errorf("basin_hopping: temperature must be positive, got %g", temperature)
	}
	if localIterations < 1 {
		return nil, fmt.Errorf("basin_hopping: local max_iterations must be positive, got %d", localIterations)
	}
	if tolerance <= 0 || fdStep <= 0 {
		return nil, fmt.Errorf("basin_hopping: tolerance and finite_difference_step must be positive")
	}
	return &BasinHopping{
		iterations:      iterations,
		stepSize:        stepSize,
		temperature:     temperature,
		localIterations: localIterations,
		tolerance:       tolerance,
		fdStep:          fdStep,
		seed:            seed,
	}, nil
}

func (b *BasinHopping) Name() string { return "basin_hopping" }

// Solve hops between local minima starting from the equal-split guess.
func (b *BasinHopping) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	ev := &counter{inner: eval}
	rng := rand.New(rand.NewSource(b.seed))
	lower, upper := p.Bounds()

	x := p.EqualSplit()
	projectFeasible(x, lower, upper, p.TotalDeltaV)

	current, localIters, _, err := localDescent(ctx, ev, lower, upper, p.TotalDeltaV, x, b.localIterations, b.tolerance, b.fdStep)
	if err != nil {
		return nil, err
	}
	currentScore, err := ev.score(current)
	if err != nil {
		return nil, err
	}
	best, bestScore := clone(current), currentScore

	iters := localIters
	scale := b.stepSize * p.TotalDeltaV
	for hop := 0; hop < b.iterations; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trial := clone(current)
		for i := range trial {
			trial[i] += (2*rng.Float64() - 1) * scale
		}
		projectFeasible(trial, lower, upper, p.TotalDeltaV)

		minimum, n, _, err := localDescent(ctx, ev, lower, upper, p.TotalDeltaV, trial, b.localIterations, b.tolerance, b.fdStep)
		if err != nil {
			return nil, err
		}
		iters += n + 1
		score, err := ev.score(minimum)
		if err != nil {
			return nil, err
		}

		if score < bestScore {
			best, bestScore = clone(minimum), score
		}
		// Metropolis acceptance keeps some uphill hops to escape basins.
		if score < currentScore || rng.Float64() < math.Exp((currentScore-score)/b.temperature) {
			current, currentScore = minimum, score
		}
	}

	return finish(p, ev, best, true, fmt.Sprintf("basin hopping completed %d hops", b.iterations), iters, ev.n, start)
}
