package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// PSOConfig holds the particle swarm parameters.
type PSOConfig struct {
	Particles     int
	Iterations    int
	InertiaWeight float64
	Cognitive     float64
	Social        float64
	Seed          int64
}

// PSO moves a swarm of candidates through the search box, each particle
// pulled toward its personal best and the swarm's global best. Velocities
// are clamped to a tenth of the per-stage share and positions are projected
// back onto the stage bounds and delta-v total after every move.
type PSO struct {
	cfg PSOConfig
}

// NewPSO validates the parameters at construction time.
func NewPSO(cfg PSOConfig) (*PSO, error) {
	if cfg.Particles < 2 {
		return nil, fmt.Errorf("pso: n_particles must be at least 2, got %d", cfg.Particles)
	}
	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("pso: n_iterations must be positive, got %d", cfg.Iterations)
	}
	if cfg.InertiaWeight <= 0 || cfg.InertiaWeight >= 1 {
		return nil, fmt.Errorf("pso: inertia_weight must lie in (0, 1), got %g", cfg.InertiaWeight)
	}
	if cfg.Cognitive <= 0 || cfg.Social <= 0 {
		return nil, fmt.Errorf("pso: cognitive_param and social_param must be positive")
	}
	return &PSO{cfg: cfg}, nil
}

func (s *PSO) Name() string { return "pso" }

// Solve runs the swarm for the configured iteration budget.
func (s *PSO) Solve(ctx context.Context, p *rocket.Problem, eval Evaluator) (*Result, error) {
	start := time.Now()
	ev := &counter{inner: eval}
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	lower, upper := p.Bounds()
	dim := p.NumStages()

	positions := seedPopulation(rng, p, s.cfg.Particles)
	vMax := 0.1 * p.TotalDeltaV / float64(dim)
	velocities := make([][]float64, s.cfg.Particles)
	for i := range velocities {
		velocities[i] = make([]float64, dim)
		for d := range velocities[i] {
			velocities[i][d] = (2*rng.Float64() - 1) * vMax
		}
	}

	personalBest := make([][]float64, s.cfg.Particles)
	personalScore := make([]float64, s.cfg.Particles)
	var globalBest []float64
	globalScore := math.Inf(1)
	for i, pos := range positions {
		// A particle of the wrong dimension would corrupt every vectorized
		// update below, so it aborts the run rather than limping on.
		if err := checkDimension(p, pos); err != nil {
			return nil, err
		}
		score, err := ev.score(pos)
		if err != nil {
			return nil, err
		}
		personalBest[i] = clone(pos)
		personalScore[i] = score
		if score < globalScore {
			globalBest, globalScore = clone(pos), score
		}
	}

	iters := 0
	for ; iters < s.cfg.Iterations; iters++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, pos := range positions {
			r1, r2 := rng.Float64(), rng.Float64()
			for d := range pos {
				v := s.cfg.InertiaWeight*velocities[i][d] +
					s.cfg.Cognitive*r1*(personalBest[i][d]-pos[d]) +
					s.cfg.Social*r2*(globalBest[d]-pos[d])
				velocities[i][d] = math.Max(-vMax, math.Min(vMax, v))
				pos[d] += velocities[i][d]
			}
			projectFeasible(pos, lower, upper, p.TotalDeltaV)

			score, err := ev.score(pos)
			if err != nil {
				return nil, err
			}
			if score < personalScore[i] {
				copy(personalBest[i], pos)
				personalScore[i] = score
			}
			if score < globalScore {
				globalBest, globalScore = clone(pos), score
			}
		}
	}

	return finish(p, ev, globalBest, true, fmt.Sprintf("pso completed %d iterations", iters), iters, ev.n, start)
}
