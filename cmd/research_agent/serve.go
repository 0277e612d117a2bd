package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/candidate-research/internal/config"
	"github.com/jonathan/candidate-research/internal/server"
	"github.com/jonathan/candidate-research/internal/server/ratelimit"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server that exposes the research session: submit, cancel, restart,
minimize, restore, export and a server-sent event stream of view changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config and RESEARCH_PORT)")
	rootCmd.AddCommand(serveCmd)
}

// serverConfig maps the agent config onto the HTTP server
func serverConfig(cfg config.Config) server.Config {
	return server.Config{
		Port:         cfg.Port,
		CORSOrigin:   cfg.CORSOrigin,
		RateLimit:    ratelimit.NewConfig(cfg.RateLimitPerMinute, cfg.SubmitRateLimitPerMinute),
		MaxBodyBytes: int64(cfg.MaxAttachmentBytes)*4/3 + 1<<20,
		KeepAlive:    15 * time.Second,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if err := applyConfigVerbosity(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.ctrl, serverConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Serving research API", zap.Int("port", cfg.Port), zap.String("synthesizer", cfg.Synthesizer))
	return srv.Start(ctx)
}
