// Package cli wires the subsystems into the remex command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"remex/internal/config"
	"remex/internal/repository"
	"remex/internal/repository/sqlite"
	"remex/internal/trust"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "remex",
	Short:        "Agentless remote execution over SSH",
	Long:         "Stages a minimal verified runtime on each target over SSH, runs one routine across the fleet, and tears everything down. Targets need nothing preinstalled beyond a POSIX shell.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: search standard locations)")
}

// app bundles the wired subsystems behind one Close
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   repository.Repository
	trust  *trust.Store
}

func newApp(cmd *cobra.Command) (*app, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, _, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := trust.NewStore(cmd.Context(), repo, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, repo: repo, trust: store}, nil
}

func (a *app) Close() {
	a.repo.Close()
	_ = a.logger.Sync()
}
