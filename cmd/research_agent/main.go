// Package main provides the entry point for the candidate research agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/config"
	"github.com/jonathan/candidate-research/internal/logging"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "research_agent",
	Short: "Candidate research agent",
	Long: `Runs candidate research sessions: a profile and a job description go through a
staged analysis pipeline that ends in a scored evaluation, exportable as PDF, JSON or CSV.

Use "serve" for the HTTP API or "run" for a single session in the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initLogger(cmd, verbose)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func initLogger(cmd *cobra.Command, debug bool) error {
	l, err := logging.New(logging.Options{
		Verbose: debug,
		Console: cmd.Name() != "serve",
	})
	if err != nil {
		return err
	}
	if logger != nil {
		_ = logger.Sync()
	}
	logger = l
	return nil
}

// applyConfigVerbosity switches to debug logging when the config file asks for
// it and the flag did not already.
func applyConfigVerbosity(cmd *cobra.Command, cfg config.Config) error {
	if !cfg.Verbose || verbose {
		return nil
	}
	return initLogger(cmd, true)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a .json, .yaml or .yml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
