package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/stageopt/internal/config"
	"github.com/cwbudde/stageopt/internal/engine"
	"github.com/cwbudde/stageopt/internal/report"
)

var (
	configPath  string
	missionPath string
	outDir      string
	solverNames []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all configured solvers against a mission",
	Long:  `Runs the delta-v allocation optimization and writes a unified report.`,
	RunE:  runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Solver configuration file (YAML)")
	runCmd.Flags().StringVar(&missionPath, "mission", "", "Mission file: total delta-v and stage table (required)")
	runCmd.Flags().StringVar(&outDir, "out", "./data", "Report output directory")
	runCmd.Flags().StringSliceVar(&solverNames, "solvers", nil, "Solvers to run (default: all registered)")

	runCmd.MarkFlagRequired("mission")
	rootCmd.AddCommand(runCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mission, err := config.LoadMission(missionPath)
	if err != nil {
		return err
	}
	problem, err := config.BuildProblem(cfg, mission)
	if err != nil {
		return err
	}

	orch := engine.New(cfg)
	names := solverNames
	if len(names) == 0 {
		names = orch.SolverNames()
	}

	slog.Info("Starting optimization",
		"stages", problem.NumStages(),
		"total_delta_v", problem.TotalDeltaV,
		"solvers", strings.Join(names, ","),
	)

	start := time.Now()
	results := orch.RunAll(cmd.Context(), problem, names)
	elapsed := time.Since(start)

	rep := report.Build(cfg, results)

	store, err := report.NewStore(outDir)
	if err != nil {
		return err
	}
	runID := uuid.New().String()
	if err := store.Save(runID, rep); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	slog.Info("Optimization complete", "run_id", runID, "elapsed", elapsed)

	if name, best, ok := rep.Best(); ok {
		fmt.Printf("Best solver: %s (payload fraction %.6f)\n", name, best.PayloadFraction)
		for _, s := range best.Breakdown {
			fmt.Printf("  stage %d: %.1f m/s (lambda %.4f)\n", s.Stage, s.DeltaV, s.StageRatio)
		}
	} else {
		fmt.Println("No solver produced a feasible solution")
	}
	fmt.Printf("Report written to %s\n", store.Path(runID))

	return nil
}
