// Package engine runs the configured solver adapters concurrently against a
// shared evaluator and cache, under a bounded worker pool and per-run
// timeouts. RunAll always completes and always yields exactly one result per
// requested solver; a solver's failure never aborts its siblings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/stageopt/internal/cache"
	"github.com/cwbudde/stageopt/internal/config"
	"github.com/cwbudde/stageopt/internal/objective"
	"github.com/cwbudde/stageopt/internal/rocket"
	"github.com/cwbudde/stageopt/internal/solver"
)

// Factory builds a solver adapter from configuration. Construction errors
// are configuration errors: surfaced immediately as a failed result, never
// retried.
type Factory func(cfg *config.Config) (solver.Solver, error)

// Orchestrator dispatches solver adapters as independent units of work.
type Orchestrator struct {
	cfg      *config.Config
	registry map[string]Factory
}

// New creates an orchestrator with the built-in adapter registry.
func New(cfg *config.Config) *Orchestrator {
	o := &Orchestrator{cfg: cfg, registry: make(map[string]Factory)}
	for name, f := range builtinFactories() {
		o.registry[name] = f
	}
	return o
}

// Register installs (or overrides) a solver factory. Tests use this to
// inject stub solvers.
func (o *Orchestrator) Register(name string, f Factory) {
	o.registry[name] = f
}

// SolverNames returns every registered solver name, sorted.
func (o *Orchestrator) SolverNames() []string {
	names := make([]string, 0, len(o.registry))
	for name := range o.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll runs each requested solver against the shared evaluator and cache.
// It never returns an error: every requested name maps to exactly one
// result, failed runs included.
func (o *Orchestrator) RunAll(ctx context.Context, p *rocket.Problem, names []string) map[string]*solver.Result {
	results := make(map[string]*solver.Result, len(names))

	shared, err := cache.New(o.cfg.Optimization.CacheSize)
	if err != nil {
		for _, name := range names {
			results[name] = solver.Failure("configuration error: "+err.Error(), 0)
		}
		return results
	}
	eval := cache.NewEvaluator(shared, objective.NewEvaluator(p, o.cfg.Optimization.PenaltyCoefficient))

	poolCtx, cancel := context.WithTimeout(ctx, o.cfg.Optimization.Parallel.Timeout.Std())
	defer cancel()

	var mu sync.Mutex
	g, poolCtx := errgroup.WithContext(poolCtx)
	g.SetLimit(o.cfg.Optimization.Parallel.MaxWorkers)

	for _, name := range names {
		g.Go(func() error {
			res := o.runOne(poolCtx, name, p, eval)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	hits, misses := shared.Stats()
	slog.Info("All solvers finished",
		"solvers", len(names),
		"cache_hits", hits,
		"cache_misses", misses,
		"cache_entries", shared.Len(),
	)
	return results
}

// runOne executes a single solver with its own timeout, converting every
// failure mode into a failed result.
func (o *Orchestrator) runOne(ctx context.Context, name string, p *rocket.Problem, eval solver.Evaluator) (res *solver.Result) {
	start := time.Now()
	timeout := o.cfg.Optimization.ParallelSolverTimeout.Std()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Solver panicked", "solver", name, "panic", r, "stack", string(debug.Stack()))
			res = solver.Failure(fmt.Sprintf("solver failure: panic: %v", r), time.Since(start))
		}
	}()

	factory, ok := o.registry[name]
	if !ok {
		return solver.Failure(fmt.Sprintf("configuration error: unknown solver %q", name), time.Since(start))
	}
	s, err := factory(o.cfg)
	if err != nil {
		slog.Error("Solver construction failed", "solver", name, "error", err)
		return solver.Failure("configuration error: "+err.Error(), time.Since(start))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("Starting solver", "solver", name, "timeout", timeout)
	result, err := s.Solve(runCtx, p, eval)
	if err != nil {
		return solver.Failure(classify(err, name, timeout), time.Since(start))
	}
	if result == nil || len(result.Stages) != p.NumStages() {
		return solver.Failure(fmt.Sprintf("solver failure: %s returned a malformed result", name), time.Since(start))
	}

	slog.Info("Solver finished",
		"solver", name,
		"success", result.Success,
		"payload_fraction", result.PayloadFraction,
		"constraint_violation", float64(result.ConstraintViolation),
		"iterations", result.Metrics.Iterations,
		"evaluations", result.Metrics.FunctionEvaluations,
		"elapsed", result.Metrics.ExecutionTime,
	)
	return result
}

// classify maps an adapter error to the failure taxonomy message.
func classify(err error, name string, timeout time.Duration) string {
	var contractErr *objective.ContractError
	var cacheErr *cache.ConfigError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("solver timeout: %s exceeded %s", name, timeout)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("solver timeout: %s cancelled by pool shutdown", name)
	case errors.As(err, &contractErr):
		return "evaluation contract violation: " + err.Error()
	case errors.As(err, &cacheErr):
		return "configuration error: " + err.Error()
	default:
		return "solver failure: " + err.Error()
	}
}

// builtinFactories wires every adapter family to its configuration section.
func builtinFactories() map[string]Factory {
	return map[string]Factory{
		"slsqp": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.SLSQP.SolverSpecific
			return solver.NewSLSQP(p.MaxIterations, p.Tolerance, p.FiniteDifferenceStep)
		},
		"basin_hopping": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.BasinHopping.SolverSpecific
			local := cfg.Optimization.Solvers.SLSQP.SolverSpecific
			return solver.NewBasinHopping(p.Iterations, p.StepSize, p.Temperature,
				local.MaxIterations, local.Tolerance, local.FiniteDifferenceStep,
				cfg.Optimization.Seed)
		},
		"ga": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.GA.SolverSpecific
			return solver.NewGA(solver.GAConfig{
				PopulationSize: p.PopulationSize,
				Generations:    p.Generations,
				CrossoverProb:  p.CrossoverProb,
				CrossoverEta:   p.CrossoverEta,
				MutationProb:   p.MutationProb,
				MutationEta:    p.MutationEta,
				TournamentSize: p.TournamentSize,
				EliteCount:     p.EliteCount,
				CacheSize:      p.CacheSize,
				Seed:           cfg.Optimization.Seed,
			})
		},
		"adaptive_ga": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.AdaptiveGA.SolverSpecific
			return solver.NewAdaptiveGA(solver.AdaptiveGAConfig{
				PopulationSize:       p.PopulationSize,
				Generations:          p.Generations,
				InitialMutationRate:  p.InitialMutationRate,
				MinMutationRate:      p.MinMutationRate,
				MaxMutationRate:      p.MaxMutationRate,
				InitialCrossoverRate: p.InitialCrossoverRate,
				MinCrossoverRate:     p.MinCrossoverRate,
				MaxCrossoverRate:     p.MaxCrossoverRate,
				AdaptationRate:       p.AdaptationRate,
				DiversityThreshold:   p.DiversityThreshold,
				StagnationThreshold:  p.StagnationThreshold,
				TournamentSize:       p.TournamentSize,
				EliteCount:           p.EliteCount,
				Seed:                 cfg.Optimization.Seed,
			})
		},
		"pso": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.PSO.SolverSpecific
			return solver.NewPSO(solver.PSOConfig{
				Particles:     p.Particles,
				Iterations:    p.Iterations,
				InertiaWeight: p.InertiaWeight,
				Cognitive:     p.Cognitive,
				Social:        p.Social,
				Seed:          cfg.Optimization.Seed,
			})
		},
		"de": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.DE.SolverSpecific
			return solver.NewDE(solver.DEConfig{
				PopulationSize: p.PopulationSize,
				MaxIterations:  p.MaxIterations,
				MutationMin:    p.MutationMin,
				MutationMax:    p.MutationMax,
				Recombination:  p.Recombination,
				Strategy:       p.Strategy,
				Tol:            p.Tol,
				Seed:           cfg.Optimization.Seed,
			})
		},
		"mayfly": func(cfg *config.Config) (solver.Solver, error) {
			p := cfg.Optimization.Solvers.Mayfly.SolverSpecific
			return solver.NewMayfly(p.MaxIterations, p.PopulationSize, cfg.Optimization.Seed)
		},
	}
}
