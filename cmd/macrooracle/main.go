package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/macrooracle/internal/app"
	"github.com/rewired-gh/macrooracle/internal/config"
	"github.com/rewired-gh/macrooracle/internal/logger"
)

var (
	configPath string
	cfg        *config.Config
)

// rootCmd serves by default
var rootCmd = &cobra.Command{
	Use:   "macrooracle",
	Short: "Macro regime monitor driven by FRED data and signal agents",
	Long: `macrooracle polls economic series from FRED, runs eight signal agents over them
and synthesizes a market regime, either with a reasoning model or with a
deterministic weighted vote.

Run without arguments to start the service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		if configPath != "" {
			logger.Debug("Configuration loaded from %s", configPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE: runServe,
}

// serveCmd runs the loop, API and bot until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent loop, HTTP API and Telegram bot",
	RunE:  runServe,
}

// runOnceCmd prints a single cycle result
var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Fetch, analyze and synthesize once, then print the result as JSON",
	RunE:  runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")
	runOnceCmd.Flags().Duration("timeout", 5*time.Minute, "Cycle timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runOnceCmd)
	rootCmd.AddCommand(promptsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, stop := signalContext()
	defer stop()

	logger.Info("Starting macrooracle (interval: %v, engine: %s)", cfg.Loop.Interval, a.Orchestrator().Engine())
	return a.Run(ctx)
}

func runOnce(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg.Telegram.Enabled = false
	cfg.Server.Enabled = false
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := a.RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
