package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/config"
)

var rootCmd = &cobra.Command{
	Use:   "gridscalp",
	Short: "Averaging grid trader for one or more venue accounts",
	Long: `Gridscalp runs an averaging grid per account: an entry opened on a
signal, extra rungs added every step the price moves against it, each rung
closed for a profit on the way back and a trailing virtual stop on the
entry.

Signals arrive over the control API; state survives restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnv(envFiles...)
	},
}

var (
	cfgFile  string
	logLevel string
	envFiles []string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gridscalp.yaml", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files loaded before the config (default .env)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}
