package report

import (
	"time"

	"github.com/rustyeddy/gridscalp/journal"
)

// Trade is the body of POST /api/bot/trade.
type Trade struct {
	Action       string     `json:"action"`
	EventID      string     `json:"eventId"`
	BotAccountID string     `json:"botAccountId"`
	Ticket       string     `json:"ticket,omitempty"`
	Side         string     `json:"side,omitempty"`
	Symbol       string     `json:"symbol"`
	Level        int        `json:"level"`
	LotSize      float64    `json:"lotSize,omitempty"`
	OpenPrice    *float64   `json:"openPrice,omitempty"`
	OpenedAt     *time.Time `json:"openedAt,omitempty"`
	ClosePrice   *float64   `json:"closePrice,omitempty"`
	CloseReason  string     `json:"closeReason,omitempty"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	VirtualSL    *float64   `json:"virtualSL,omitempty"`
}

// closeReasons maps journal reasons to the backend vocabulary.
var closeReasons = map[string]string{
	"take_profit":   "GRID_STEP",
	"trailing_stop": "VIRTUAL_SL",
	"close_all":     "MANUAL",
}

func tradeFromEvent(ev journal.Event) Trade {
	t := Trade{
		EventID:      ev.ID,
		BotAccountID: ev.Account,
		Ticket:       ev.Ticket,
		Symbol:       ev.Symbol,
		Level:        ev.Level,
		LotSize:      ev.Volume,
	}
	if ev.Side != "" {
		t.Side = ev.Side.String()
	}

	price, at := ev.Price, ev.Time.UTC()
	switch ev.Kind {
	case journal.KindOpen:
		t.Action = "OPEN"
		t.OpenPrice, t.OpenedAt = &price, &at
	case journal.KindClose:
		t.Action = "CLOSE"
		t.ClosePrice, t.ClosedAt = &price, &at
		t.CloseReason = closeReasons[ev.Reason]
		if t.CloseReason == "" {
			t.CloseReason = "MANUAL"
		}
	case journal.KindUpdate:
		t.Action = "UPDATE"
		t.VirtualSL = &price
	}
	return t
}

// Heartbeat is the body of POST /api/bot/heartbeat.
type Heartbeat struct {
	Timestamp     time.Time       `json:"timestamp"`
	Version       string          `json:"version"`
	Connected     bool            `json:"mt5Connected"`
	OpenPositions int             `json:"openPositions"`
	PendingOrders int             `json:"pendingOrders"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	Accounts      []AccountStatus `json:"accounts,omitempty"`
}

type AccountStatus struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	EntryOpen     bool   `json:"entryOpen"`
	PendingLevels int    `json:"pendingLevels"`
	LiveLevels    int    `json:"liveLevels"`
	Closing       bool   `json:"closing"`
	LastError     string `json:"lastError,omitempty"`
}
