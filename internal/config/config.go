// Package config defines the structured configuration for an optimization
// run. Decoding is strict: unknown fields fail at load time, so contract
// mismatches (a stray cache persistence option, a misspelled solver
// parameter) surface before any solver starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/stageopt/internal/rocket"
)

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return "configuration: " + e.Field + " " + e.Reason
}

// Duration wraps time.Duration with YAML decoding of strings like "90s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full run configuration.
type Config struct {
	Optimization Optimization `yaml:"optimization" json:"optimization"`
	Logging      Logging      `yaml:"logging" json:"logging"`
}

// Optimization is the core engine configuration.
type Optimization struct {
	PenaltyCoefficient float64     `yaml:"penalty_coefficient" json:"penalty_coefficient"`
	Constraints        Constraints `yaml:"constraints" json:"constraints"`
	Bounds             Bounds      `yaml:"bounds" json:"bounds"`
	Parallel           Parallel    `yaml:"parallel" json:"parallel"`

	// ParallelSolverTimeout bounds each individual solver run, distinct
	// from the pool-wide Parallel.Timeout.
	ParallelSolverTimeout Duration `yaml:"parallel_solver_timeout" json:"parallel_solver_timeout"`

	MaxProcesses int   `yaml:"max_processes" json:"max_processes"`
	CacheSize    int   `yaml:"cache_size" json:"cache_size"`
	Seed         int64 `yaml:"seed" json:"seed"`

	Solvers Solvers `yaml:"solvers" json:"solvers"`
}

// Constraints groups the feasibility constraints.
type Constraints struct {
	TotalDV        TotalDV        `yaml:"total_dv" json:"total_dv"`
	StageFractions StageFractions `yaml:"stage_fractions" json:"stage_fractions"`
}

// TotalDV configures the delta-v equality constraint.
type TotalDV struct {
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

// StageFractions bounds each stage's share of total delta-v, with the first
// stage constrained separately from the rest.
type StageFractions struct {
	FirstStage  FractionRange `yaml:"first_stage" json:"first_stage"`
	OtherStages FractionRange `yaml:"other_stages" json:"other_stages"`
}

// FractionRange is an inclusive [min, max] share of total delta-v.
type FractionRange struct {
	MinFraction float64 `yaml:"min_fraction" json:"min_fraction"`
	MaxFraction float64 `yaml:"max_fraction" json:"max_fraction"`
}

// Bounds is the global delta-v box applied on top of stage fractions.
type Bounds struct {
	MinDV       float64 `yaml:"min_dv" json:"min_dv"`
	MaxDVFactor float64 `yaml:"max_dv_factor" json:"max_dv_factor"`
}

// Parallel configures the orchestrator's worker pool.
type Parallel struct {
	MaxWorkers int      `yaml:"max_workers" json:"max_workers"`
	Timeout    Duration `yaml:"timeout" json:"timeout"`
}

// Section wraps per-solver parameters under the solver_specific key.
type Section[T any] struct {
	SolverSpecific T `yaml:"solver_specific" json:"solver_specific"`
}

// Solvers enumerates every adapter's parameters.
type Solvers struct {
	SLSQP        Section[SLSQPParams]        `yaml:"slsqp" json:"slsqp"`
	BasinHopping Section[BasinHoppingParams] `yaml:"basin_hopping" json:"basin_hopping"`
	GA           Section[GAParams]           `yaml:"ga" json:"ga"`
	AdaptiveGA   Section[AdaptiveGAParams]   `yaml:"adaptive_ga" json:"adaptive_ga"`
	PSO          Section[PSOParams]          `yaml:"pso" json:"pso"`
	DE           Section[DEParams]           `yaml:"de" json:"de"`
	Mayfly       Section[MayflyParams]       `yaml:"mayfly" json:"mayfly"`
}

// SLSQPParams configures the gradient adapter.
type SLSQPParams struct {
	MaxIterations        int     `yaml:"max_iterations" json:"max_iterations"`
	Tolerance            float64 `yaml:"tolerance" json:"tolerance"`
	FiniteDifferenceStep float64 `yaml:"finite_difference_step" json:"finite_difference_step"`
}

// BasinHoppingParams configures the basin-hopping adapter.
type BasinHoppingParams struct {
	Iterations  int     `yaml:"n_iterations" json:"n_iterations"`
	StepSize    float64 `yaml:"step_size" json:"step_size"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// GAParams configures the genetic algorithm adapter.
type GAParams struct {
	PopulationSize int     `yaml:"population_size" json:"population_size"`
	Generations    int     `yaml:"n_generations" json:"n_generations"`
	CrossoverProb  float64 `yaml:"crossover_prob" json:"crossover_prob"`
	CrossoverEta   float64 `yaml:"crossover_eta" json:"crossover_eta"`
	MutationProb   float64 `yaml:"mutation_prob" json:"mutation_prob"`
	MutationEta    float64 `yaml:"mutation_eta" json:"mutation_eta"`
	TournamentSize int     `yaml:"tournament_size" json:"tournament_size"`
	EliteCount     int     `yaml:"elite_count" json:"elite_count"`
	CacheSize      int     `yaml:"cache_size" json:"cache_size"`
}

// AdaptiveGAParams configures the adaptive genetic algorithm adapter.
type AdaptiveGAParams struct {
	PopulationSize       int     `yaml:"population_size" json:"population_size"`
	Generations          int     `yaml:"n_generations" json:"n_generations"`
	InitialMutationRate  float64 `yaml:"initial_mutation_rate" json:"initial_mutation_rate"`
	MinMutationRate      float64 `yaml:"min_mutation_rate" json:"min_mutation_rate"`
	MaxMutationRate      float64 `yaml:"max_mutation_rate" json:"max_mutation_rate"`
	InitialCrossoverRate float64 `yaml:"initial_crossover_rate" json:"initial_crossover_rate"`
	MinCrossoverRate     float64 `yaml:"min_crossover_rate" json:"min_crossover_rate"`
	MaxCrossoverRate     float64 `yaml:"max_crossover_rate" json:"max_crossover_rate"`
	AdaptationRate       float64 `yaml:"adaptation_rate" json:"adaptation_rate"`
	DiversityThreshold   float64 `yaml:"diversity_threshold" json:"diversity_threshold"`
	StagnationThreshold  int     `yaml:"stagnation_threshold" json:"stagnation_threshold"`
	TournamentSize       int     `yaml:"tournament_size" json:"tournament_size"`
	EliteCount           int     `yaml:"elite_count" json:"elite_count"`
}

// PSOParams configures the particle swarm adapter.
type PSOParams struct {
	Particles     int     `yaml:"n_particles" json:"n_particles"`
	Iterations    int     `yaml:"n_iterations" json:"n_iterations"`
	InertiaWeight float64 `yaml:"inertia_weight" json:"inertia_weight"`
	Cognitive     float64 `yaml:"cognitive_param" json:"cognitive_param"`
	Social        float64 `yaml:"social_param" json:"social_param"`
}

// DEParams configures the differential evolution adapter.
type DEParams struct {
	PopulationSize int     `yaml:"population_size" json:"population_size"`
	MaxIterations  int     `yaml:"max_iterations" json:"max_iterations"`
	MutationMin    float64 `yaml:"mutation_min" json:"mutation_min"`
	MutationMax    float64 `yaml:"mutation_max" json:"mutation_max"`
	Recombination  float64 `yaml:"recombination" json:"recombination"`
	Strategy       string  `yaml:"strategy" json:"strategy"`
	Tol            float64 `yaml:"tol" json:"tol"`
}

// MayflyParams configures the mayfly adapter.
type MayflyParams struct {
	MaxIterations  int `yaml:"max_iterations" json:"max_iterations"`
	PopulationSize int `yaml:"population_size" json:"population_size"`
}

// Logging is owned by the external logging collaborator; the core only
// echoes it into the report.
type Logging struct {
	File   string `yaml:"file" json:"file"`
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when a field is omitted.
func Default() *Config {
	return &Config{
		Optimization: Optimization{
			PenaltyCoefficient: 1000.0,
			Constraints: Constraints{
				TotalDV: TotalDV{Tolerance: 1e-6},
				StageFractions: StageFractions{
					FirstStage:  FractionRange{MinFraction: 0.15, MaxFraction: 0.80},
					OtherStages: FractionRange{MinFraction: 0.01, MaxFraction: 0.90},
				},
			},
			Bounds:                Bounds{MinDV: 0, MaxDVFactor: 1.0},
			Parallel:              Parallel{MaxWorkers: 4, Timeout: Duration(10 * time.Minute)},
			ParallelSolverTimeout: Duration(2 * time.Minute),
			MaxProcesses:          4,
			CacheSize:             10000,
			Seed:                  42,
			Solvers: Solvers{
				SLSQP: Section[SLSQPParams]{SLSQPParams{
					MaxIterations: 1000, Tolerance: 1e-6, FiniteDifferenceStep: 1e-6,
				}},
				BasinHopping: Section[BasinHoppingParams]{BasinHoppingParams{
					Iterations: 100, StepSize: 0.05, Temperature: 1.0,
				}},
				GA: Section[GAParams]{GAParams{
					PopulationSize: 100, Generations: 200,
					CrossoverProb: 0.9, CrossoverEta: 15,
					MutationProb: 0.2, MutationEta: 20,
					TournamentSize: 3, EliteCount: 1,
				}},
				AdaptiveGA: Section[AdaptiveGAParams]{AdaptiveGAParams{
					PopulationSize: 100, Generations: 200,
					InitialMutationRate: 0.1, MinMutationRate: 0.01, MaxMutationRate: 0.3,
					InitialCrossoverRate: 0.8, MinCrossoverRate: 0.6, MaxCrossoverRate: 0.95,
					AdaptationRate: 0.5, DiversityThreshold: 0.1, StagnationThreshold: 10,
					TournamentSize: 3, EliteCount: 2,
				}},
				PSO: Section[PSOParams]{PSOParams{
					Particles: 50, Iterations: 200,
					InertiaWeight: 0.7, Cognitive: 1.5, Social: 1.5,
				}},
				DE: Section[DEParams]{DEParams{
					PopulationSize: 30, MaxIterations: 1000,
					MutationMin: 0.3, MutationMax: 0.7,
					Recombination: 0.9, Strategy: "best1bin", Tol: 1e-6,
				}},
				Mayfly: Section[MayflyParams]{MayflyParams{
					MaxIterations: 200, PopulationSize: 30,
				}},
			},
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads a configuration file over the defaults. Unknown fields are
// rejected at decode time.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every bounded field.
func (c *Config) Validate() error {
	opt := &c.Optimization
	if opt.PenaltyCoefficient <= 0 {
		return &FieldError{Field: "optimization.penalty_coefficient", Reason: "must be positive"}
	}
	if opt.Constraints.TotalDV.Tolerance <= 0 {
		return &FieldError{Field: "optimization.constraints.total_dv.tolerance", Reason: "must be positive"}
	}
	for name, fr := range map[string]FractionRange{
		"first_stage":  opt.Constraints.StageFractions.FirstStage,
		"other_stages": opt.Constraints.StageFractions.OtherStages,
	} {
		if fr.MinFraction < 0 || fr.MaxFraction <= 0 || fr.MinFraction > fr.MaxFraction || fr.MaxFraction > 1 {
			return &FieldError{
				Field:  "optimization.constraints.stage_fractions." + name,
				Reason: "must satisfy 0 <= min_fraction <= max_fraction <= 1",
			}
		}
	}
	if opt.Bounds.MinDV < 0 {
		return &FieldError{Field: "optimization.bounds.min_dv", Reason: "must be non-negative"}
	}
	if opt.Bounds.MaxDVFactor <= 0 {
		return &FieldError{Field: "optimization.bounds.max_dv_factor", Reason: "must be positive"}
	}
	if opt.Parallel.MaxWorkers < 1 {
		return &FieldError{Field: "optimization.parallel.max_workers", Reason: "must be at least 1"}
	}
	if opt.Parallel.Timeout <= 0 {
		return &FieldError{Field: "optimization.parallel.timeout", Reason: "must be positive"}
	}
	if opt.ParallelSolverTimeout <= 0 {
		return &FieldError{Field: "optimization.parallel_solver_timeout", Reason: "must be positive"}
	}
	if opt.MaxProcesses < 1 {
		return &FieldError{Field: "optimization.max_processes", Reason: "must be at least 1"}
	}
	if opt.CacheSize < 1 {
		return &FieldError{Field: "optimization.cache_size", Reason: "must be at least 1"}
	}
	return nil
}

// Mission describes the vehicle: the required total delta-v and the ordered
// stage table.
type Mission struct {
	TotalDeltaV float64        `yaml:"total_delta_v" json:"total_delta_v"`
	Stages      []MissionStage `yaml:"stages" json:"stages"`
}

// MissionStage is one stage's physical parameters.
type MissionStage struct {
	ISP     float64 `yaml:"isp" json:"isp"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
}

// LoadMission reads a mission file with strict decoding.
func LoadMission(path string) (*Mission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mission: %w", err)
	}
	defer f.Close()

	var m Mission
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mission %s: %w", path, err)
	}
	return &m, nil
}

// BuildProblem combines the mission with the configured constraints into a
// validated problem.
func BuildProblem(cfg *Config, m *Mission) (*rocket.Problem, error) {
	fractions := cfg.Optimization.Constraints.StageFractions
	stages := make([]rocket.Stage, len(m.Stages))
	for i, s := range m.Stages {
		fr := fractions.OtherStages
		if i == 0 {
			fr = fractions.FirstStage
		}
		stages[i] = rocket.Stage{
			ISP:         s.ISP,
			Epsilon:     s.Epsilon,
			MinFraction: fr.MinFraction,
			MaxFraction: fr.MaxFraction,
		}
	}
	p := &rocket.Problem{
		Stages:      stages,
		TotalDeltaV: m.TotalDeltaV,
		Tolerance:   cfg.Optimization.Constraints.TotalDV.Tolerance,
		MinDV:       cfg.Optimization.Bounds.MinDV,
		MaxDVFactor: cfg.Optimization.Bounds.MaxDVFactor,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
