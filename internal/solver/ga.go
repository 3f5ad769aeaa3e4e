package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/stageopt/internal/cache"
	"github.com/cwbudde/stageopt/internal/objective"
	"github.com/cwbudde/stageopt/internal/rocket"
)

// GAConfig holds the genetic algorithm parameters.
type GAConfig struct {
	PopulationSize int
	Generations    int
	CrossoverProb  float64
	CrossoverEta   float64
	MutationProb   float64
	MutationEta    float64
	TournamentSize int
	EliteCount     int
	Seed           int64

	// CacheSize, when positive, gives this adapter a private evaluation
	// cache layered over the shared one. Zero means shared only; negative
	// is a configuration error.
	CacheSize int
}

// GA is a generational genetic algorithm: tournament selection, simulated
// binary crossover, polynomial mutation, elitism. Children are projected
// onto the stage bounds and delta-v total, so feasibility holds by
// construction and the evaluator penalty is only a backstop.
type GA struct {
	cfg GAConfig
}

// NewGA validates the parameters at construction time, including the cache
// argument; an unsupported cache size fails fast instead of surfacing
// mid-run.
func NewGA(cfg GAConfig) (*GA, error) {
	if cfg.PopulationSize < 2 {
		return nil, fmt.Errorf("ga: population_size must be at least 2, got %d", cfg.PopulationSize)
	}
	if cfg.Generations < 1 {
		return nil, fmt.Errorf("ga: n_generations must be positive, got %d", cfg.Generations)
	}
	if cfg.CrossoverProb < 0 || cfg.CrossoverProb > 1 || cfg.MutationProb < 0 || cfg.MutationProb > 1 {
		return nil, fmt.Errorf("ga: crossover_prob and mutation_prob must lie in [0, 1]")
	}
	if cfg.CrossoverEta <= 0 || cfg.MutationEta <= 0 {
		return nil, fmt.Errorf("ga: crossover_eta and mutation_eta must be positive")
	}
	if cfg.TournamentSize < 2 {
		return nil, fmt.Errorf("ga: tournament_size must be at least 2, got %d", cfg.TournamentSize)
	}
	if cfg.EliteCount < 0 || cfg.EliteCount >= cfg.PopulationSize {
		return nil, fmt.Errorf("ga: elite_count must lie in [0, population_size), got %d", cfg.EliteCount)
	}
	if cfg.CacheSize < 0 {
		return nil, &cache.ConfigError{Param: "cache_size", Reason: fmt.Sprintf("unsupported value %d", cfg.CacheSize)}
	}
	return &GA{cfg: cfg}, nil
}

func (g *GA) Name() string { return "ga" }

// Solve evolves the population for the configured generation budget.
func (g *GA) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	if g.cfg.CacheSize > 0 {
		private, err := cache.New(g.cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		eval = &privateCachedEvaluator{cache: private, problemFP: p.Fingerprint(), inner: eval}
	}
	ev := &counter{inner: eval}
	rng := rand.New(rand.NewSource(g.cfg.Seed))
	lower, upper := p.Bounds()

	pop := seedPopulation(rng, p, g.cfg.PopulationSize)
	scores := make([]float64, len(pop))

	var best []float64
	bestScore := math.Inf(1)
	gens := 0
	for ; gens < g.cfg.Generations; gens++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, ind := range pop {
			s, err := ev.score(ind)
			if err != nil {
				return nil, err
			}
			scores[i] = s
			if s < bestScore {
				best, bestScore = clone(ind), s
			}
		}
		pop = g.nextGeneration(rng, pop, scores, lower, upper, p.TotalDeltaV)
	}

	return finish(p, ev, best, true, fmt.Sprintf("ga completed %d generations", gens), gens, ev.n, start)
}

func (g *GA) nextGeneration(rng *rand.Rand, pop [][]float64, scores []float64, lower, upper []float64, total float64) [][]float64 {
	next := make([][]float64, 0, len(pop))
	for _, i := range eliteIndices(scores, g.cfg.EliteCount) {
		next = append(next, clone(pop[i]))
	}
	for len(next) < len(pop) {
		a := tournament(rng, scores, g.cfg.TournamentSize)
		b := tournament(rng, scores, g.cfg.TournamentSize)
		c1, c2 := clone(pop[a]), clone(pop[b])
		if rng.Float64() < g.cfg.CrossoverProb {
			sbxCrossover(rng, c1, c2, g.cfg.CrossoverEta)
		}
		polynomialMutation(rng, c1, lower, upper, g.cfg.MutationProb, g.cfg.MutationEta)
		polynomialMutation(rng, c2, lower, upper, g.cfg.MutationProb, g.cfg.MutationEta)
		projectFeasible(c1, lower, upper, total)
		projectFeasible(c2, lower, upper, total)
		next = append(next, c1)
		if len(next) < len(pop) {
			next = append(next, c2)
		}
	}
	return next
}

// tournament picks the best of k random competitors and returns its index.
func tournament(rng *rand.Rand, scores []float64, k int) int {
	winner := rng.Intn(len(scores))
	for range k - 1 {
		c := rng.Intn(len(scores))
		if scores[c] < scores[winner] {
			winner = c
		}
	}
	return winner
}

// eliteIndices returns the indices of the n best-scoring individuals.
func eliteIndices(scores []float64, n int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	// Partial selection sort; elite counts are small.
	for i := 0; i < n && i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			if scores[idx[j]] < scores[idx[i]] {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	return idx[:min(n, len(idx))]
}

// sbxCrossover applies simulated binary crossover in place with the given
// distribution index eta.
func sbxCrossover(rng *rand.Rand, a, b []float64, eta float64) {
	for i := range a {
		u := rng.Float64()
		var beta float64
		if u <= 0.5 {
			beta = math.Pow(2*u, 1/(eta+1))
		} else {
			beta = math.Pow(1/(2*(1-u)), 1/(eta+1))
		}
		p1, p2 := a[i], b[i]
		a[i] = 0.5 * ((1+beta)*p1 + (1-beta)*p2)
		b[i] = 0.5 * ((1-beta)*p1 + (1+beta)*p2)
	}
}

// polynomialMutation perturbs genes with probability prob using the
// polynomial distribution with index eta, scaled to the gene's range.
func polynomialMutation(rng *rand.Rand, x, lower, upper []float64, prob, eta float64) {
	for i := range x {
		if rng.Float64() >= prob {
			continue
		}
		u := rng.Float64()
		var delta float64
		if u < 0.5 {
			delta = math.Pow(2*u, 1/(eta+1)) - 1
		} else {
			delta = 1 - math.Pow(2*(1-u), 1/(eta+1))
		}
		x[i] += delta * (upper[i] - lower[i])
	}
}

// privateCachedEvaluator layers an adapter-owned cache over the shared
// evaluator chain.
type privateCachedEvaluator struct {
	cache     *cache.Cache
	problemFP uint64
	inner     Evaluator
}

func (e *privateCachedEvaluator) Evaluate(dv []float64) (objective.Evaluation, error) {
	key := cache.Fingerprint(e.problemFP, dv)
	return e.cache.GetOrCompute(key, func() (objective.Evaluation, error) {
		return e.inner.Evaluate(dv)
	})
}
