package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/config"
	"github.com/rustyeddy/gridscalp/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <ticks.csv>",
	Short: "Replay recorded ticks through the configured grids",
	Long: `Replay feeds a CSV of ticks (time,symbol,bid,ask[,event,side,restriction])
into the paper venue, running one reconciliation round per row. Signals in
the event column are dispatched before the round of their row.

State goes to a throwaway directory unless --state-dir is given; reporting
and the control API are off.

Example:
  gridscalp replay -c gridscalp.yaml ticks.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayStateDir string
	replayJournal  string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayStateDir, "state-dir", "", "keep state in this directory")
	replayCmd.Flags().StringVar(&replayJournal, "journal", "", "write a sqlite journal to this path")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.Report.Enabled = false
	cfg.API.Enabled = false
	cfg.Simulation.Feeds = nil
	cfg.Store.Driver = "file"
	cfg.Store.Path = replayStateDir
	if cfg.Store.Path == "" {
		dir, err := os.MkdirTemp("", "gridscalp-replay-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		cfg.Store.Path = dir
	}
	cfg.Journal = config.JournalConfig{Type: "none"}
	if replayJournal != "" {
		cfg.Journal = config.JournalConfig{Type: "sqlite", Path: replayJournal}
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := replay.CSV(ctx, args[0], a.venue, a.router, a.loop)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replayed %d rows (%s to %s), %d signals, %d failed rounds\n\n",
		st.Rows, st.First.Format("2006-01-02 15:04:05"), st.Last.Format("2006-01-02 15:04:05"), st.Signals, st.RoundErrors)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tSYMBOL\tSIDE\tOPEN\tCLOSED\tREALIZED")
	for _, e := range a.engines {
		s := e.Snapshot()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\n", s.Account, s.Symbol, s.Side,
			len(a.venue.Positions(s.Account)), len(a.venue.Closed(s.Account)), a.venue.Balance(s.Account))
	}
	return tw.Flush()
}
