package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{"id", "time", "account", "symbol", "kind", "level", "ticket", "side", "volume", "price", "reason"}

// CSVJournal appends events to a CSV file. The header is written only when
// the file is new.
type CSVJournal struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &CSVJournal{w: w, f: f}, nil
}

func (j *CSVJournal) Record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.w.Write([]string{
		e.ID,
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Account,
		e.Symbol,
		string(e.Kind),
		strconv.Itoa(e.Level),
		e.Ticket,
		e.Side.String(),
		f(e.Volume),
		f(e.Price),
		e.Reason,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
