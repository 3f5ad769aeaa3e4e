package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/stageopt/internal/report"
)

var runsDir string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored run reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := report.NewStore(runsDir)
		if err != nil {
			return err
		}
		infos, err := store.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No runs found")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %s  %d/%d solvers succeeded\n",
				info.RunID,
				info.Timestamp.Format("2006-01-02 15:04:05"),
				info.Succeeded, info.Solvers,
			)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsDir, "out", "./data", "Report output directory")
	rootCmd.AddCommand(runsCmd)
}
