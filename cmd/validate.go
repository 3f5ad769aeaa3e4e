package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/stageopt/internal/config"
)

var (
	validateConfigPath  string
	validateMissionPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and mission files",
	Long:  `Loads the configuration and mission files and checks every bounded field without running any solver.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if validateConfigPath != "" {
			var err error
			cfg, err = config.Load(validateConfigPath)
			if err != nil {
				return err
			}
		}
		fmt.Println("configuration: ok")

		if validateMissionPath != "" {
			mission, err := config.LoadMission(validateMissionPath)
			if err != nil {
				return err
			}
			problem, err := config.BuildProblem(cfg, mission)
			if err != nil {
				return err
			}
			fmt.Printf("mission: ok (%d stages, %.1f m/s total delta-v)\n",
				problem.NumStages(), problem.TotalDeltaV)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "Solver configuration file (YAML)")
	validateCmd.Flags().StringVar(&validateMissionPath, "mission", "", "Mission file (YAML)")
	rootCmd.AddCommand(validateCmd)
}
