package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatEventOrg renders an Event as an Org-mode heading with a PROPERTIES
// drawer, for pasting into a trading journal.
func FormatEventOrg(e Event) string {
	heading := fmt.Sprintf("** %s %s L%d (%s)", strings.ToUpper(string(e.Kind)), e.Symbol, e.Level, shortID(e.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", e.ID))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", e.Time.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":ACCOUNT: %s\n", e.Account))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", e.Symbol))
	b.WriteString(fmt.Sprintf(":LEVEL: %d\n", e.Level))
	if e.Ticket != "" {
		b.WriteString(fmt.Sprintf(":TICKET: %s\n", e.Ticket))
	}
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", e.Side))
	b.WriteString(fmt.Sprintf(":VOLUME: %.2f\n", e.Volume))
	b.WriteString(fmt.Sprintf(":PRICE: %.5f\n", e.Price))
	if e.Reason != "" {
		b.WriteString(fmt.Sprintf(":REASON: %s\n", e.Reason))
	}
	b.WriteString(":END:\n")

	return b.String()
}

// FormatEventsOrg renders multiple events separated by blank lines.
func FormatEventsOrg(events []Event) string {
	var b strings.Builder
	for i, e := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEventOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
