package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gridscalp/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query journal events recorded by the sqlite journal.

Examples:
  gridscalp journal event <event-id>
  gridscalp journal events --account 70001 --kind close
  gridscalp journal events --day 2026-01-15 --org`,
}

var journalEventCmd = &cobra.Command{
	Use:   "event <event-id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEvent,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events",
	Args:  cobra.NoArgs,
	RunE:  runJournalEvents,
}

var (
	journalDBPath  string
	journalAccount string
	journalKind    string
	journalDay     string
	journalLimit   int
	journalOrg     bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalEventCmd)
	journalCmd.AddCommand(journalEventsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./journal.db", "path to SQLite journal DB")
	journalEventsCmd.Flags().StringVar(&journalAccount, "account", "", "only this account")
	journalEventsCmd.Flags().StringVar(&journalKind, "kind", "", "only this kind (open, close, update, signal)")
	journalEventsCmd.Flags().StringVar(&journalDay, "day", "", "only this local day (YYYY-MM-DD)")
	journalEventsCmd.Flags().IntVar(&journalLimit, "limit", 0, "maximum events")
	journalEventsCmd.Flags().BoolVar(&journalOrg, "org", false, "print Org-mode headings")
}

func runJournalEvent(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	e, err := j.GetEvent(args[0])
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatEventOrg(e))
	return nil
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	flt := journal.Filter{
		Account: journalAccount,
		Kind:    journal.Kind(journalKind),
		Limit:   journalLimit,
	}
	if journalDay != "" {
		flt.Since, flt.Until, err = dayBounds(time.Local, journalDay)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}

	events, err := j.ListEvents(flt)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}

	out := cmd.OutOrStdout()
	if journalOrg {
		fmt.Fprintln(out, journal.FormatEventsOrg(events))
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACCOUNT\tKIND\tLEVEL\tSIDE\tVOLUME\tPRICE\tREASON")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%.2f\t%.5f\t%s\n",
			e.Time.Local().Format("2006-01-02 15:04:05"), e.Account, e.Kind, e.Level, e.Side, e.Volume, e.Price, e.Reason)
	}
	return tw.Flush()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
