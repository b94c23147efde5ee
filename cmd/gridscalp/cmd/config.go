package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default paper-trading configuration
  validate - Load and validate the file given by --config

Examples:
  gridscalp config init -o gridscalp.yaml
  gridscalp config validate -c gridscalp.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "gridscalp.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintf(out, "\nEdit the file and run with:\n  gridscalp run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", cfgFile)
	for _, a := range cfg.Accounts {
		fmt.Fprintf(out, "  Account %s: %s step %.1f pips, up to %d levels, magic %d\n",
			a.ID, a.Symbol, a.Grid.StepPips, a.Grid.Levels(), a.Magic)
	}
	fmt.Fprintf(out, "  Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
	fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
	if cfg.API.Enabled {
		fmt.Fprintf(out, "  API: %s\n", cfg.API.Addr)
	}
	return nil
}
