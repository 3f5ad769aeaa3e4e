package objective

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// Evaluation is the strict two-scalar output of one candidate evaluation.
// PayloadFraction is the objective to maximize; Violation is 0 for feasible
// candidates, positive for bound or total delta-v breaches, and +Inf when
// the staging physics degenerate for the candidate.
type Evaluation struct {
	PayloadFraction float64
	Violation       float64
}

// ContractError reports a candidate whose dimensionality does not match the
// problem. It is fatal for the owning solver run, never silently coerced.
type ContractError struct {
	Want int
	Got  int
}

func (e *ContractError) Error() string {
	return "evaluation contract: candidate has " + strconv.Itoa(e.Got) +
		" components, problem has " + strconv.Itoa(e.Want) + " stages"
}

// Evaluator maps a candidate delta-v vector to (payload fraction, constraint
// violation). It is a pure function of the candidate and problem parameters;
// every solver shares one instance per run.
type Evaluator struct {
	problem *rocket.Problem
	penalty float64
}

// NewEvaluator builds an evaluator for the problem using the configured
// penalty coefficient (applied to the raw constraint breach).
func NewEvaluator(p *rocket.Problem, penaltyCoefficient float64) *Evaluator {
	return &Evaluator{problem: p, penalty: penaltyCoefficient}
}

// Problem returns the problem the evaluator is bound to.
func (e *Evaluator) Problem() *rocket.Problem {
	return e.problem
}

// Evaluate computes the payload fraction and penalized constraint violation
// for one candidate. A dimension mismatch returns a ContractError; numerical
// degeneracy (non-positive stage ratio) is reported as Violation = +Inf, not
// as an error, so search loops can reject the candidate and continue.
func (e *Evaluator) Evaluate(dv []float64) (Evaluation, error) {
	n := e.problem.NumStages()
	if len(dv) != n {
		return Evaluation{}, &ContractError{Want: n, Got: len(dv)}
	}

	payload := 1.0
	for i, s := range e.problem.Stages {
		// lambda_i = exp(-dv_i / (g0 * isp_i)) - epsilon_i
		lambda := math.Exp(-dv[i]/(rocket.G0*s.ISP)) - s.Epsilon
		if lambda <= 0 || math.IsNaN(lambda) || math.IsInf(lambda, 0) {
			return Evaluation{PayloadFraction: 0, Violation: math.Inf(1)}, nil
		}
		payload *= lambda
	}
	if math.IsNaN(payload) || math.IsInf(payload, 0) {
		return Evaluation{PayloadFraction: 0, Violation: math.Inf(1)}, nil
	}

	return Evaluation{
		PayloadFraction: payload,
		Violation:       e.penalty * e.rawViolation(dv),
	}, nil
}

// rawViolation aggregates the unpenalized constraint breach: total delta-v
// equality error beyond tolerance plus per-stage fraction bound distances.
func (e *Evaluator) rawViolation(dv []float64) float64 {
	p := e.problem
	breach := math.Abs(floats.Sum(dv) - p.TotalDeltaV)
	if breach <= p.Tolerance {
		breach = 0
	}
	for i, s := range p.Stages {
		lo := s.MinFraction * p.TotalDeltaV
		hi := s.MaxFraction * p.TotalDeltaV
		if dv[i] < lo {
			breach += lo - dv[i]
		} else if dv[i] > hi {
			breach += dv[i] - hi
		}
	}
	return breach
}

// Score folds an evaluation into a single minimization scalar: negative
// payload fraction plus the penalized violation. Infeasible candidates are
// dominated by feasible ones regardless of raw payload fraction.
func Score(ev Evaluation) float64 {
	return -ev.PayloadFraction + ev.Violation
}

// StageRatios expands a resolved delta-v vector into per-stage mass and
// payload ratios for reporting.
func StageRatios(p *rocket.Problem, dv []float64) []StageBreakdown {
	out := make([]StageBreakdown, len(dv))
	for i, s := range p.Stages {
		massRatio := math.Exp(-dv[i] / (rocket.G0 * s.ISP))
		out[i] = StageBreakdown{
			Stage:      i + 1,
			DeltaV:     dv[i],
			MassRatio:  massRatio,
			StageRatio: massRatio - s.Epsilon,
		}
	}
	return out
}

// StageBreakdown is the per-stage detail attached to solver results.
type StageBreakdown struct {
	Stage      int     `json:"stage"`
	DeltaV     float64 `json:"delta_v"`
	MassRatio  float64 `json:"mass_ratio"`
	StageRatio float64 `json:"stage_ratio"`
}
