package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/stageopt/internal/config"
	"github.com/cwbudde/stageopt/internal/rocket"
	"github.com/cwbudde/stageopt/internal/solver"
)

// newTestConfig shrinks every solver budget so a full orchestrator run stays
// fast while still exercising the real adapters.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Optimization.Solvers.SLSQP.SolverSpecific.MaxIterations = 50
	cfg.Optimization.Solvers.BasinHopping.SolverSpecific.Iterations = 3
	cfg.Optimization.Solvers.GA.SolverSpecific.PopulationSize = 10
	cfg.Optimization.Solvers.GA.SolverSpecific.Generations = 5
	cfg.Optimization.Solvers.AdaptiveGA.SolverSpecific.PopulationSize = 10
	cfg.Optimization.Solvers.AdaptiveGA.SolverSpecific.Generations = 5
	cfg.Optimization.Solvers.PSO.SolverSpecific.Particles = 10
	cfg.Optimization.Solvers.PSO.SolverSpecific.Iterations = 10
	cfg.Optimization.Solvers.DE.SolverSpecific.PopulationSize = 8
	cfg.Optimization.Solvers.DE.SolverSpecific.MaxIterations = 10
	cfg.Optimization.Solvers.Mayfly.SolverSpecific.MaxIterations = 5
	cfg.Optimization.Solvers.Mayfly.SolverSpecific.PopulationSize = 20
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Test config is invalid: %v", err)
	}
	return cfg
}

func newTestProblem(t *testing.T) *rocket.Problem {
	t.Helper()

	p, err := rocket.New([]rocket.Stage{
		{ISP: 300, Epsilon: 0.06, MinFraction: 0.15, MaxFraction: 0.80},
		{ISP: 348, Epsilon: 0.04, MinFraction: 0.01, MaxFraction: 0.90},
	}, 9000)
	if err != nil {
		t.Fatalf("Failed to build problem: %v", err)
	}
	return p
}

// stubSolver lets tests inject arbitrary solve behavior by name.
type stubSolver struct {
	name  string
	solve func(ctx context.Context, p *rocket.Problem, eval solver.Evaluator) (*solver.Result, error)
}

func (s *stubSolver) Name() string { return s.name }

func (s *stubSolver) Solve(ctx context.Context, p *rocket.Problem, eval solver.Evaluator) (*solver.Result, error) {
	return s.solve(ctx, p, eval)
}

func TestSolverNames(t *testing.T) {
	o := New(newTestConfig(t))

	want := []string{"adaptive_ga", "basin_hopping", "de", "ga", "mayfly", "pso", "slsqp"}
	got := o.SolverNames()
	if len(got) != len(want) {
		t.Fatalf("Registered %d solvers, expected %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SolverNames[%d] is %q, expected %q", i, got[i], want[i])
		}
	}
}

func TestRunAllIsolatesMisconfiguredSolver(t *testing.T) {
	cfg := newTestConfig(t)
	// Deliberately invalid cache argument: the GA must fail at construction
	// while the other five run to completion.
	cfg.Optimization.Solvers.GA.SolverSpecific.CacheSize = -1

	o := New(cfg)
	names := []string{"slsqp", "basin_hopping", "ga", "adaptive_ga", "pso", "de"}
	results := o.RunAll(context.Background(), newTestProblem(t), names)

	if len(results) != len(names) {
		t.Fatalf("Got %d results, expected %d", len(results), len(names))
	}

	failures := 0
	for name, res := range results {
		if res == nil {
			t.Fatalf("Solver %s has a nil result", name)
		}
		if !res.Success {
			failures++
			if name != "ga" {
				t.Errorf("Unexpected failure from %s: %s", name, res.Message)
			}
			if !strings.Contains(res.Message, "configuration error") {
				t.Errorf("Failure message %q does not name a configuration error", res.Message)
			}
		}
	}
	if failures != 1 {
		t.Errorf("Expected exactly 1 failed solver, got %d", failures)
	}
}

func TestRunAllFullRoster(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full roster run in short mode")
	}

	o := New(newTestConfig(t))
	names := o.SolverNames()
	results := o.RunAll(context.Background(), newTestProblem(t), names)

	if len(results) != len(names) {
		t.Fatalf("Got %d results, expected %d", len(results), len(names))
	}
	for name, res := range results {
		if !res.Success {
			t.Errorf("Solver %s failed: %s", name, res.Message)
		}
	}
}

func TestRunAllUnknownSolver(t *testing.T) {
	o := New(newTestConfig(t))
	results := o.RunAll(context.Background(), newTestProblem(t), []string{"newton_raphson"})

	res := results["newton_raphson"]
	if res == nil {
		t.Fatal("Unknown solver produced no result")
	}
	if res.Success {
		t.Error("Unknown solver must not succeed")
	}
	if !strings.Contains(res.Message, "configuration error") || !strings.Contains(res.Message, "newton_raphson") {
		t.Errorf("Unexpected failure message: %s", res.Message)
	}
}

func TestRunAllTimeoutIsIsolated(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Optimization.ParallelSolverTimeout = config.Duration(100 * time.Millisecond)

	o := New(cfg)
	o.Register("glacial", func(*config.Config) (solver.Solver, error) {
		return &stubSolver{name: "glacial", solve: func(ctx context.Context, _ *rocket.Problem, _ solver.Evaluator) (*solver.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}, nil
	})

	results := o.RunAll(context.Background(), newTestProblem(t), []string{"glacial", "slsqp"})

	glacial := results["glacial"]
	if glacial.Success {
		t.Error("Timed-out solver must not succeed")
	}
	if !strings.Contains(glacial.Message, "solver timeout") {
		t.Errorf("Expected a timeout failure, got: %s", glacial.Message)
	}

	if !results["slsqp"].Success {
		t.Errorf("Sibling solver was dragged down by the timeout: %s", results["slsqp"].Message)
	}
}

func TestRunAllRecoversPanic(t *testing.T) {
	o := New(newTestConfig(t))
	o.Register("explosive", func(*config.Config) (solver.Solver, error) {
		return &stubSolver{name: "explosive", solve: func(context.Context, *rocket.Problem, solver.Evaluator) (*solver.Result, error) {
			panic("index out of range")
		}}, nil
	})

	results := o.RunAll(context.Background(), newTestProblem(t), []string{"explosive", "slsqp"})

	explosive := results["explosive"]
	if explosive.Success {
		t.Error("Panicked solver must not succeed")
	}
	if !strings.Contains(explosive.Message, "solver failure") || !strings.Contains(explosive.Message, "panic") {
		t.Errorf("Expected a panic failure, got: %s", explosive.Message)
	}

	if !results["slsqp"].Success {
		t.Errorf("Sibling solver was dragged down by the panic: %s", results["slsqp"].Message)
	}
}

func TestRunAllRejectsMalformedResult(t *testing.T) {
	o := New(newTestConfig(t))
	o.Register("truncated", func(*config.Config) (solver.Solver, error) {
		return &stubSolver{name: "truncated", solve: func(context.Context, *rocket.Problem, solver.Evaluator) (*solver.Result, error) {
			return &solver.Result{Success: true, Stages: []float64{9000}}, nil
		}}, nil
	})

	results := o.RunAll(context.Background(), newTestProblem(t), []string{"truncated"})

	res := results["truncated"]
	if res.Success {
		t.Error("Malformed result must be converted to a failure")
	}
	if !strings.Contains(res.Message, "malformed") {
		t.Errorf("Unexpected failure message: %s", res.Message)
	}
}

func TestRunAllBadSharedCache(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Optimization.CacheSize = 0

	o := New(cfg)
	names := []string{"slsqp", "ga"}
	results := o.RunAll(context.Background(), newTestProblem(t), names)

	if len(results) != len(names) {
		t.Fatalf("Got %d results, expected %d", len(results), len(names))
	}
	for name, res := range results {
		if res.Success {
			t.Errorf("Solver %s succeeded without a shared cache", name)
		}
		if !strings.Contains(res.Message, "configuration error") {
			t.Errorf("Solver %s failure message %q does not name a configuration error", name, res.Message)
		}
	}
}
