// Package report normalizes solver outcomes into the run report schema and
// persists reports to the filesystem.
package report

import (
	"time"

	"github.com/cwbudde/stageopt/internal/config"
	"github.com/cwbudde/stageopt/internal/solver"
)

// Report is the unified output of one orchestration run: a timestamp, the
// effective configuration and one normalized result per solver.
type Report struct {
	Timestamp     time.Time                 `json:"timestamp"`
	Configuration config.Config             `json:"configuration"`
	Results       map[string]*solver.Result `json:"results"`
}

// Build assembles the report. Missing or nil results are normalized into
// failed entries so consumers can rely on exactly one entry per requested
// solver.
func Build(cfg *config.Config, results map[string]*solver.Result) *Report {
	normalized := make(map[string]*solver.Result, len(results))
	for name, res := range results {
		if res == nil {
			res = solver.Failure("solver failure: no result produced", 0)
		}
		if res.Stages == nil {
			res.Stages = []float64{}
		}
		normalized[name] = res
	}
	return &Report{
		Timestamp:     time.Now().UTC(),
		Configuration: *cfg,
		Results:       normalized,
	}
}

// Best returns the name and result of the most successful run: the feasible
// solution with the highest payload fraction. ok is false when every solver
// failed or produced an infeasible solution.
func (r *Report) Best() (name string, best *solver.Result, ok bool) {
	for n, res := range r.Results {
		if !res.Success || float64(res.ConstraintViolation) > 0 {
			continue
		}
		if best == nil || res.PayloadFraction > best.PayloadFraction {
			name, best = n, res
		}
	}
	return name, best, best != nil
}
