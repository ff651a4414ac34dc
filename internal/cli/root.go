// Package cli implements the documind command line.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"documind/internal/config"
	"documind/internal/logging"
	"documind/internal/service"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "documind",
	Short: "Ask questions about your Markdown and PDF documents",
	Long: `DocuMind indexes the .md and .pdf files in a data directory and answers
questions about them with a retrieval-augmented language model. Every answer
lists the document chunks it was based on.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/documind/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app is what every command works with.
type app struct {
	cfg *config.AppConfig
	log *zap.Logger
	svc *service.Service
}

// openApp loads .env and the config, then builds the logger and service.
// When quiet is set, logs go to a file so they do not draw over the TUI.
func openApp(quiet bool) (*app, error) {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File}
	if verbose {
		logCfg.Level = "debug"
	}
	if quiet && logCfg.File == "" {
		logCfg.File = filepath.Join(cfg.IndexDir, "documind.log")
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	svc, err := buildService(cfg, log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.log.Warn("close vector store", zap.Error(err))
	}
	_ = a.log.Sync()
}
