package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/store"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted grid state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Print the saved state of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	data, err := st.Load(context.Background(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "no saved state for %s\n", args[0])
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	rec, err := store.Decode(data)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
