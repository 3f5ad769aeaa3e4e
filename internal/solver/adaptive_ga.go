package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// AdaptiveGAConfig holds the adaptive genetic algorithm parameters.
type AdaptiveGAConfig struct {
	PopulationSize int
	Generations    int

	InitialMutationRate  float64
	MinMutationRate      float64
	MaxMutationRate      float64
	InitialCrossoverRate float64
	MinCrossoverRate     float64
	MaxCrossoverRate     float64

	// AdaptationRate controls how aggressively rates move: under selection
	// pressure they grow by (1 + AdaptationRate), otherwise they decay by
	// 1 / (1 + AdaptationRate).
	AdaptationRate float64

	DiversityThreshold  float64
	StagnationThreshold int

	TournamentSize int
	EliteCount     int
	Seed           int64
}

// AdaptiveGA is a genetic algorithm whose mutation and crossover rates adapt
// to measured population diversity and fitness stagnation: rates rise when
// diversity falls below the threshold or the best score stagnates, and decay
// toward their minimums otherwise. Variation uses blend crossover and
// gaussian mutation.
type AdaptiveGA struct {
	cfg AdaptiveGAConfig
}

// NewAdaptiveGA validates the parameters at construction time.
func NewAdaptiveGA(cfg AdaptiveGAConfig) (*AdaptiveGA, error) {
	if cfg.PopulationSize < 2 {
		return nil, fmt.Errorf("adaptive_ga: population_size must be at least 2, got %d", cfg.PopulationSize)
	}
	if cfg.Generations < 1 {
		return nil, fmt.Errorf("adaptive_ga: n_generations must be positive, got %d", cfg.Generations)
	}
	if cfg.MinMutationRate <= 0 || cfg.MinMutationRate > cfg.MaxMutationRate || cfg.MaxMutationRate > 1 {
		return nil, fmt.Errorf("adaptive_ga: mutation rate bounds must satisfy 0 < min <= max <= 1")
	}
	if cfg.MinCrossoverRate <= 0 || cfg.MinCrossoverRate > cfg.MaxCrossoverRate || cfg.MaxCrossoverRate > 1 {
		return nil, fmt.Errorf("adaptive_ga: crossover rate bounds must satisfy 0 < min <= max <= 1")
	}
	if cfg.InitialMutationRate < cfg.MinMutationRate || cfg.InitialMutationRate > cfg.MaxMutationRate {
		return nil, fmt.Errorf("adaptive_ga: initial_mutation_rate outside [min, max]")
	}
	if cfg.InitialCrossoverRate < cfg.MinCrossoverRate || cfg.InitialCrossoverRate > cfg.MaxCrossoverRate {
		return nil, fmt.Errorf("adaptive_ga: initial_crossover_rate outside [min, max]")
	}
	if cfg.AdaptationRate <= 0 {
		return nil, fmt.Errorf("adaptive_ga: adaptation_rate must be positive, got %g", cfg.AdaptationRate)
	}
	if cfg.DiversityThreshold <= 0 {
		return nil, fmt.Errorf("adaptive_ga: diversity_threshold must be positive, got %g", cfg.DiversityThreshold)
	}
	if cfg.StagnationThreshold < 1 {
		return nil, fmt.Errorf("adaptive_ga: stagnation_threshold must be positive, got %d", cfg.StagnationThreshold)
	}
	if cfg.TournamentSize < 2 {
		return nil, fmt.Errorf("adaptive_ga: tournament_size must be at least 2, got %d", cfg.TournamentSize)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("adaptive_ga: elite_count must lie in [0, population_size), got %d", cfg.EliteCount)
	}
	return &AdaptiveGA{cfg: cfg}, nil
}

func (a *AdaptiveGA) Name() string { return "adaptive_ga" }

// Solve evolves the population, adapting rates each generation and stopping
// early once improvement stalls well past the stagnation threshold.
func (a *AdaptiveGA) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	ev := &counter{inner: eval}
	rng := rand.New(rand.NewSource(a.cfg.Seed))
	lower, upper := p.Bounds()

	pop := seedPopulation(rng, p, a.cfg.PopulationSize)
	scores := make([]float64, len(pop))

	ctrl := newRateController(a.cfg)
	tracker := newConvergenceTracker(1e-6, 3*a.cfg.StagnationThreshold)

	var best []float64
	bestScore := math.Inf(1)
	gens := 0
	converged := false
	for ; gens < a.cfg.Generations; gens++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		genBest := math.Inf(1)
		for i, ind := range pop {
			s, err := ev.score(ind)
			if err != nil {
				return nil, err
			}
			scores[i] = s
			genBest = math.Min(genBest, s)
			if s < bestScore {
				best, bestScore = clone(ind), s
			}
		}
		if tracker.Update(genBest) {
			converged = true
			break
		}

		ctrl.update(diversity(pop), tracker.StaleCount())
		pop = a.nextGeneration(rng, ctrl, pop, scores, lower, upper, p.TotalDeltaV)
	}

	message := fmt.Sprintf("adaptive ga completed %d generations", gens)
	if converged {
		message = fmt.Sprintf("adaptive ga converged after %d generations", gens)
	}
	return finish(p, ev, best, true, message, gens, ev.n, start)
}

func (a *AdaptiveGA) nextGeneration(rng *rand.Rand, ctrl *rateController, pop [][]float64, scores []float64, lower, upper []float64, total float64) [][]float64 {
	next := make([][]float64, 0, len(pop))
	for _, i := range eliteIndices(scores, a.cfg.EliteCount) {
		next = append(next, clone(pop[i]))
	}
	for len(next) < len(pop) {
		p1 := pop[tournament(rng, scores, a.cfg.TournamentSize)]
		p2 := pop[tournament(rng, scores, a.cfg.TournamentSize)]
		c1, c2 := blendCrossover(rng, p1, p2, ctrl.crossover)
		gaussianMutation(rng, c1, lower, upper, ctrl.mutation)
		gaussianMutation(rng, c2, lower, upper, ctrl.mutation)
		projectFeasible(c1, lower, upper, total)
		projectFeasible(c2, lower, upper, total)
		next = append(next, c1)
		if len(next) < len(pop) {
			next = append(next, c2)
		}
	}
	return next
}

// rateController is the adaptation state machine: measure, adjust, clamp.
type rateController struct {
	cfg       AdaptiveGAConfig
	mutation  float64
	crossover float64
}

func newRateController(cfg AdaptiveGAConfig) *rateController {
	return &rateController{cfg: cfg, mutation: cfg.InitialMutationRate, crossover: cfg.InitialCrossoverRate}
}

// update raises both rates when the population has collapsed (low diversity)
// or the search has stagnated, and decays them otherwise. Rates always stay
// inside their configured bounds.
func (r *rateController) update(div float64, stale int) {
	grow := 1 + r.cfg.AdaptationRate
	decay := 1 / grow
	pressured := div < r.cfg.DiversityThreshold || stale >= r.cfg.StagnationThreshold
	if pressured {
		r.mutation *= grow
		r.crossover *= grow
	} else {
		r.mutation *= decay
		r.crossover *= decay
	}
	r.mutation = math.Max(r.cfg.MinMutationRate, math.Min(r.cfg.MaxMutationRate, r.mutation))
	r.crossover = math.Max(r.cfg.MinCrossoverRate, math.Min(r.cfg.MaxCrossoverRate, r.crossover))
}

// blendCrossover mixes two parents arithmetically with a random blend factor
// when the crossover rate fires, otherwise copies them through.
func blendCrossover(rng *rand.Rand, p1, p2 []float64, rate float64) ([]float64, []float64) {
	c1, c2 := clone(p1), clone(p2)
	if rng.Float64() >= rate {
		return c1, c2
	}
	alpha := rng.Float64()
	for i := range c1 {
		c1[i] = alpha*p1[i] + (1-alpha)*p2[i]
		c2[i] = (1-alpha)*p1[i] + alpha*p2[i]
	}
	return c1, c2
}

// gaussianMutation perturbs the candidate with normal noise scaled to a
// tenth of each gene's range when the mutation rate fires.
func gaussianMutation(rng *rand.Rand, x, lower, upper []float64, rate float64) {
	if rng.Float64() >= rate {
		return
	}
	for i := range x {
		x[i] += rng.NormFloat64() * 0.1 * (upper[i] - lower[i])
	}
}
