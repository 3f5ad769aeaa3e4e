// Package solver contains the adapters that search the staging problem, one
// per algorithm family. Every adapter calls the same evaluator contract and
// normalizes its outcome into the shared Result schema.
package solver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cwbudde/stageopt/internal/objective"
	"github.com/cwbudde/stageopt/internal/rocket"
)

// Evaluator is the shared contract every solver searches through. The cached
// evaluator from the cache package satisfies it; tests may substitute their
// own.
type Evaluator interface {
	Evaluate(dv []float64) (objective.Evaluation, error)
}

// Solver is the common interface over all algorithm families. The
// orchestrator depends only on this abstraction.
type Solver interface {
	Name() string
	Solve(ctx context.Context, problem *rocket.Problem, eval Evaluator) (*Result, error)
}

// Metrics records the execution cost of one solver run.
type Metrics struct {
	Iterations          int     `json:"iterations"`
	FunctionEvaluations int     `json:"function_evaluations"`
	ExecutionTime       float64 `json:"execution_time"`
}

// Violation is a float64 that marshals IEEE positive infinity as the JSON
// literal "Infinity", matching the report schema for structurally invalid
// candidates.
type Violation float64

// MarshalJSON emits Infinity for infinite violations and a plain number
// otherwise.
func (v Violation) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(v), 1) {
		return []byte(`"Infinity"`), nil
	}
	if math.IsNaN(float64(v)) {
		return []byte(`"Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(float64(v), 'g', -1, 64)), nil
}

// UnmarshalJSON accepts either a number or the "Infinity" literal.
func (v *Violation) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `"Infinity"` || s == `"+Inf"` {
		*v = Violation(math.Inf(1))
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("constraint_violation: %w", err)
	}
	*v = Violation(f)
	return nil
}

// Result is the normalized outcome of one solver run. Created once per run,
// immutable after creation, owned by the aggregator.
type Result struct {
	Success             bool                        `json:"success"`
	Message             string                      `json:"message"`
	PayloadFraction     float64                     `json:"payload_fraction"`
	ConstraintViolation Violation                   `json:"constraint_violation"`
	Metrics             Metrics                     `json:"execution_metrics"`
	Stages              []float64                   `json:"stages"`
	Breakdown           []objective.StageBreakdown  `json:"stage_breakdown,omitempty"`
}

// Failure builds the Result for a run that produced no solution.
func Failure(message string, elapsed time.Duration) *Result {
	return &Result{
		Success:             false,
		Message:             message,
		ConstraintViolation: Violation(math.Inf(1)),
		Metrics:             Metrics{ExecutionTime: elapsed.Seconds()},
		Stages:              []float64{},
	}
}

// counter wraps an evaluator and counts calls made through it, so adapters
// report function evaluation counts without threading integers around.
type counter struct {
	inner Evaluator
	n     int
}

func (c *counter) Evaluate(dv []float64) (objective.Evaluation, error) {
	c.n++
	return c.inner.Evaluate(dv)
}

// score folds an evaluation into the single minimization scalar all
// adapters descend on.
func (c *counter) score(dv []float64) (float64, error) {
	ev, err := c.Evaluate(dv)
	if err != nil {
		return 0, err
	}
	return objective.Score(ev), nil
}

// finish evaluates the resolved candidate one final time and assembles the
// shared result schema.
func finish(p *rocket.Problem, ev Evaluator, best []float64, success bool, message string, iters, evals int, start time.Time) (*Result, error) {
	final, err := ev.Evaluate(best)
	if err != nil {
		return nil, err
	}
	stages := append([]float64(nil), best...)
	return &Result{
		Success:             success,
		Message:             message,
		PayloadFraction:     final.PayloadFraction,
		ConstraintViolation: Violation(final.Violation),
		Metrics: Metrics{
			Iterations:          iters,
			FunctionEvaluations: evals + 1,
			ExecutionTime:       time.Since(start).Seconds(),
		},
		Stages:    stages,
		Breakdown: objective.StageRatios(p, stages),
	}, nil
}

// checkDimension validates candidate dimensionality against the stage count
// before any vectorized update touches it.
func checkDimension(p *rocket.Problem, dv []float64) error {
	if len(dv) != p.NumStages() {
		return &objective.ContractError{Want: p.NumStages(), Got: len(dv)}
	}
	return nil
}
