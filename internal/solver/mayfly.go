package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// Mayfly wraps the external mayfly optimizer over the penalized scalar
// objective. The library takes scalar bounds, so it searches the loosest
// per-stage box and the returned best is projected back onto the stage
// bounds and delta-v total before reporting.
type Mayfly struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly validates the adapter parameters at construction time. The
// library requires a population of at least 20.
func NewMayfly(maxIters, popSize int, seed int64) (*Mayfly, error) {
	if maxIters < 1 {
		return nil, fmt.Errorf("mayfly: max_iterations must be positive, got %d", maxIters)
	}
	if popSize < 20 {
		return nil, fmt.Errorf("mayfly: population_size must be at least 20, got %d", popSize)
	}
	return &Mayfly{maxIters: maxIters, popSize: popSize, seed: seed}, nil
}

func (m *Mayfly) Name() string { return "mayfly" }

// Solve runs the external optimizer and normalizes its outcome.
func (m *Mayfly) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ev := &counter{inner: eval}
	lower, upper := p.Bounds()

	// The objective closure cannot return an error, so the first one is
	// captured and surfaced after the run.
	var evalErr error
	objective := func(dv []float64) float64 {
		if evalErr != nil {
			return math.Inf(1)
		}
		s, err := ev.score(dv)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return s
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = p.NumStages()
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library uses scalar bounds for every dimension; per-stage bounds
	// are restored by the projection below.
	config.LowerBound = minOf(lower)
	config.UpperBound = maxOf(upper)
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if evalErr != nil {
		return nil, evalErr
	}
	if err != nil {
		return nil, fmt.Errorf("mayfly optimize: %w", err)
	}

	best := clone(result.GlobalBest.Position)
	projectFeasible(best, lower, upper, p.TotalDeltaV)

	return finish(p, ev, best, true, fmt.Sprintf("mayfly completed %d iterations", m.maxIters), m.maxIters, ev.n, start)
}

func minOf(vals []float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(vals []float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		out = math.Max(out, v)
	}
	return out
}
