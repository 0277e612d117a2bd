package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/candidate-research/internal/observability"
	"github.com/jonathan/candidate-research/internal/pipeline"
	"github.com/jonathan/candidate-research/internal/synthesis"
)

var stagesJSON bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the configured pipeline stage table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath, os.Getenv)
		if err != nil {
			return err
		}

		// The table a driver would run, after its own validation
		driver, err := pipeline.NewDriver(pipeline.Options{
			Stages:      cfg.Stages,
			Synthesizer: synthesis.NewStatic(),
		})
		if err != nil {
			return err
		}
		table := driver.Stages()

		if stagesJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(table)
		}
		observability.NewPrinter(cmd.OutOrStdout(), cfg.LogWindow).PrintStages(table)
		return nil
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "Print the table as JSON")
	rootCmd.AddCommand(stagesCmd)
}
