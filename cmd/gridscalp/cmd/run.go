package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the grid for every configured account",
	Long: `Run loads the configuration, restores each account's saved state and
manages the grids until interrupted. Signals are accepted on the control API
when it is enabled.

Example:
  gridscalp run -c gridscalp.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Log.WithField("accounts", len(a.engines)).Info("gridscalp started")

	runErr := a.run(ctx)
	closeErr := a.close()
	logger.Log.Info("gridscalp stopped")
	return errors.Join(runErr, closeErr)
}
