package rocket

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// G0 is standard gravity in m/s², used to convert specific impulse to
// effective exhaust velocity.
const G0 = 9.81

// DefaultTolerance is the equality tolerance on the total delta-v constraint.
const DefaultTolerance = 1e-6

// Stage describes one rocket stage: its engine performance, structural
// mass fraction and the share of total delta-v it is allowed to carry.
type Stage struct {
	// ISP is the specific impulse in seconds.
	ISP float64 `yaml:"isp" json:"isp"`

	// Epsilon is the structural mass fraction (structure mass / stage mass).
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`

	// MinFraction and MaxFraction bound this stage's share of total delta-v.
	MinFraction float64 `yaml:"min_fraction" json:"min_fraction"`
	MaxFraction float64 `yaml:"max_fraction" json:"max_fraction"`
}

// Problem is an immutable description of a staging optimization problem.
// Construct with New and treat as read-only afterwards.
type Problem struct {
	Stages      []Stage `yaml:"stages" json:"stages"`
	TotalDeltaV float64 `yaml:"total_delta_v" json:"total_delta_v"`

	// Tolerance is the equality tolerance on sum(dv) == TotalDeltaV.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// MinDV is the global per-stage delta-v floor (usually 0).
	MinDV float64 `yaml:"min_dv" json:"min_dv"`

	// MaxDVFactor scales TotalDeltaV into the per-stage ceiling.
	MaxDVFactor float64 `yaml:"max_dv_factor" json:"max_dv_factor"`
}

// New creates a problem with defaults applied and validates it.
func New(stages []Stage, totalDeltaV float64) (*Problem, error) {
	p := &Problem{
		Stages:      stages,
		TotalDeltaV: totalDeltaV,
		Tolerance:   DefaultTolerance,
		MinDV:       0,
		MaxDVFactor: 1.0,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidationError describes an invalid problem field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid problem: " + e.Field + " " + e.Reason
}

// Validate checks the structural invariants of the problem. A validated
// problem is treated as read-only by every other component.
func (p *Problem) Validate() error {
	if len(p.Stages) < 1 {
		return &ValidationError{Field: "stages", Reason: "must contain at least one stage"}
	}
	if p.TotalDeltaV <= p.MinDV {
		return &ValidationError{Field: "total_delta_v", Reason: fmt.Sprintf("must exceed min_dv (%g)", p.MinDV)}
	}
	if p.Tolerance <= 0 {
		return &ValidationError{Field: "tolerance", Reason: "must be positive"}
	}
	if p.MaxDVFactor <= 0 {
		return &ValidationError{Field: "max_dv_factor", Reason: "must be positive"}
	}
	for i, s := range p.Stages {
		field := "stages[" + strconv.Itoa(i) + "]"
		if s.ISP <= 0 {
			return &ValidationError{Field: field + ".isp", Reason: "must be positive"}
		}
		if s.Epsilon < 0 || s.Epsilon >= 1 {
			return &ValidationError{Field: field + ".epsilon", Reason: "must lie in [0, 1)"}
		}
		if s.MinFraction < 0 || s.MaxFraction <= 0 {
			return &ValidationError{Field: field, Reason: "fraction bounds must be non-negative and non-empty"}
		}
		if s.MinFraction > s.MaxFraction {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("min_fraction %g exceeds max_fraction %g", s.MinFraction, s.MaxFraction)}
		}
	}
	return nil
}

// NumStages returns the stage count, which is also the candidate dimension.
func (p *Problem) NumStages() int {
	return len(p.Stages)
}

// Bounds returns per-stage delta-v bounds derived from the stage fraction
// ranges intersected with the global [MinDV, MaxDVFactor*TotalDeltaV] box.
func (p *Problem) Bounds() (lower, upper []float64) {
	n := len(p.Stages)
	lower = make([]float64, n)
	upper = make([]float64, n)
	ceiling := p.MaxDVFactor * p.TotalDeltaV
	for i, s := range p.Stages {
		lower[i] = math.Max(p.MinDV, s.MinFraction*p.TotalDeltaV)
		upper[i] = math.Min(ceiling, s.MaxFraction*p.TotalDeltaV)
	}
	return lower, upper
}

// Fingerprint returns a deterministic identity for the problem parameters.
// Two structurally equal problems share a fingerprint, so cached evaluations
// are never confused across distinct problems.
func (p *Problem) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	write := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		d.Write(buf[:])
	}
	write(p.TotalDeltaV)
	write(p.Tolerance)
	write(p.MinDV)
	write(p.MaxDVFactor)
	for _, s := range p.Stages {
		write(s.ISP)
		write(s.Epsilon)
		write(s.MinFraction)
		write(s.MaxFraction)
	}
	return d.Sum64()
}

// EqualSplit returns the canonical initial guess: total delta-v divided
// evenly across stages.
func (p *Problem) EqualSplit() []float64 {
	n := len(p.Stages)
	dv := make([]float64, n)
	share := p.TotalDeltaV / float64(n)
	for i := range dv {
		dv[i] = share
	}
	return dv
}
