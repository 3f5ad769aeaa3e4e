package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// DE strategy names, matching the conventional <base>/<diffs>/<crossover>
// naming.
const (
	StrategyBest1Bin = "best1bin"
	StrategyRand1Bin = "rand1bin"
)

// DEConfig holds the differential evolution parameters.
type DEConfig struct {
	PopulationSize int
	MaxIterations  int

	// MutationMin and MutationMax bound the dithered mutation factor drawn
	// once per generation.
	MutationMin float64
	MutationMax float64

	Recombination float64
	Strategy      string
	Tol           float64
	Seed          int64
}

// DE evolves candidates via scaled vector differences and binomial
// recombination. The run converges when the population's fitness spread
// collapses relative to its mean, or at the iteration cap.
type DE struct {
	cfg DEConfig
}

// NewDE validates the parameters at construction time.
func NewDE(cfg DEConfig) (*DE, error) {
	if cfg.PopulationSize < 4 {
		return nil, fmt.Errorf("de: population_size must be at least 4, got %d", cfg.PopulationSize)
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("de: max_iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.MutationMin < 0 || cfg.MutationMin > cfg.MutationMax || cfg.MutationMax > 2 {
		return nil, fmt.Errorf("de: mutation range must satisfy 0 <= min <= max <= 2")
	}
	if cfg.Recombination <= 0 || cfg.Recombination > 1 {
		return nil, fmt.Errorf("de: recombination must lie in (0, 1], got %g", cfg.Recombination)
	}
	if cfg.Strategy != StrategyBest1Bin && cfg.Strategy != StrategyRand1Bin {
		return nil, fmt.Errorf("de: unknown strategy %q", cfg.Strategy)
	}
	if cfg.Tol <= 0 {
		return nil, fmt.Errorf("de: tol must be positive, got %g", cfg.Tol)
	}
	return &DE{cfg: cfg}, nil
}

func (d *DE) Name() string { return "de" }

// Solve evolves the population until convergence or the iteration cap.
func (d *DE) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	ev := &counter{inner: eval}
	rng := rand.New(rand.NewSource(d.cfg.Seed))
	lower, upper := p.Bounds()
	dim := p.NumStages()

	pop := seedPopulation(rng, p, d.cfg.PopulationSize)
	scores := make([]float64, len(pop))
	for i, ind := range pop {
		s, err := ev.score(ind)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	bestIdx := argmin(scores)

	iters := 0
	converged := false
	for ; iters < d.cfg.MaxIterations; iters++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Dithered mutation factor, redrawn each generation.
		f := d.cfg.MutationMin + rng.Float64()*(d.cfg.MutationMax-d.cfg.MutationMin)

		for i := range pop {
			base := pop[bestIdx]
			if d.cfg.Strategy == StrategyRand1Bin {
				base = pop[rng.Intn(len(pop))]
			}
			r1, r2 := distinctPair(rng, len(pop), i)

			trial := clone(pop[i])
			forced := rng.Intn(dim) // at least one gene always crosses over
			for j := range trial {
				if j == forced || rng.Float64() < d.cfg.Recombination {
					trial[j] = base[j] + f*(pop[r1][j]-pop[r2][j])
				}
			}
			projectFeasible(trial, lower, upper, p.TotalDeltaV)

			s, err := ev.score(trial)
			if err != nil {
				return nil, err
			}
			if s <= scores[i] {
				pop[i], scores[i] = trial, s
				if s < scores[bestIdx] {
					bestIdx = i
				}
			}
		}

		// scipy-style convergence: fitness spread small relative to mean.
		finite := finiteScores(scores)
		if len(finite) == len(scores) {
			mean := stat.Mean(finite, nil)
			if stat.StdDev(finite, nil) <= d.cfg.Tol*math.Abs(mean) {
				converged = true
				iters++
				break
			}
		}
	}

	message := fmt.Sprintf("de reached iteration cap after %d iterations", iters)
	if converged {
		message = fmt.Sprintf("de converged after %d iterations", iters)
	}
	return finish(p, ev, pop[bestIdx], true, message, iters, ev.n, start)
}

// distinctPair draws two distinct population indices, both different from
// excluded.
func distinctPair(rng *rand.Rand, n, excluded int) (int, int) {
	a := rng.Intn(n)
	for a == excluded {
		a = rng.Intn(n)
	}
	b := rng.Intn(n)
	for b == excluded || b == a {
		b = rng.Intn(n)
	}
	return a, b
}

func finiteScores(scores []float64) []float64 {
	out := make([]float64, 0, len(scores))
	for _, s := range scores {
		if !math.IsInf(s, 0) && !math.IsNaN(s) {
			out = append(out, s)
		}
	}
	return out
}
