package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/gridscalp/grid"
	"github.com/rustyeddy/gridscalp/logger"
	"github.com/rustyeddy/gridscalp/market"
)

// Config is the complete process configuration.
type Config struct {
	Accounts   []AccountConfig  `json:"accounts" yaml:"accounts"`
	Loop       LoopConfig       `json:"loop" yaml:"loop"`
	Broker     BrokerConfig     `json:"broker" yaml:"broker"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Report     ReportConfig     `json:"report" yaml:"report"`
	API        APIConfig        `json:"api" yaml:"api"`
	Log        logger.Config    `json:"log" yaml:"log"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
}

// AccountConfig is one venue login and the grid it runs.
type AccountConfig struct {
	ID       string `json:"id" yaml:"id"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Server   string `json:"server,omitempty" yaml:"server,omitempty"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	// Magic is the tag stamped on every order; positions with another tag
	// are never touched.
	Magic   int64  `json:"magic" yaml:"magic"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	// PipSize overrides the instrument table.
	PipSize float64 `json:"pip_size,omitempty" yaml:"pip_size,omitempty"`

	Entry EntryConfig `json:"entry" yaml:"entry"`
	Grid  GridConfig  `json:"grid" yaml:"grid"`
}

type EntryConfig struct {
	Lot       float64        `json:"lot" yaml:"lot"`
	NumOrders int            `json:"num_orders" yaml:"num_orders"`
	Trailing  TrailingConfig `json:"trailing" yaml:"trailing"`
}

// TrailingConfig distances are in pips. They are pointers so an explicit 0
// is kept; only an absent key takes the default.
type TrailingConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Activate *float64 `json:"activate" yaml:"activate"`
	Back     *float64 `json:"back" yaml:"back"`
	Step     *float64 `json:"step" yaml:"step"`
	Buffer   *float64 `json:"buffer" yaml:"buffer"`
}

// GridConfig.MaxLevels is a pointer for the same reason: max_levels: 0
// disables averaging.
type GridConfig struct {
	StepPips  float64 `json:"step_pips" yaml:"step_pips"`
	Lot       float64 `json:"lot" yaml:"lot"`
	MaxLevels *int    `json:"max_levels" yaml:"max_levels"`
	NumOrders int     `json:"num_orders" yaml:"num_orders"`
}

// Levels is the configured level cap, 0 when unset.
func (g GridConfig) Levels() int { return deref(g.MaxLevels) }

type LoopConfig struct {
	Period      Duration `json:"period" yaml:"period"`
	TickTimeout Duration `json:"tick_timeout" yaml:"tick_timeout"`
}

type BrokerConfig struct {
	// Venue is "paper"; live venues plug in behind broker.Gateway.
	Venue            string   `json:"venue" yaml:"venue"`
	QuoteRetries     int      `json:"quote_retries" yaml:"quote_retries"`
	QuoteBackoff     Duration `json:"quote_backoff" yaml:"quote_backoff"`
	CloseRetries     int      `json:"close_retries" yaml:"close_retries"`
	ClosePassBackoff Duration `json:"close_pass_backoff" yaml:"close_pass_backoff"`
	CloseTimeout     Duration `json:"close_timeout" yaml:"close_timeout"`
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // file, sqlite or badger
	Path   string `json:"path" yaml:"path"`
}

type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // csv, sqlite or none
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type ReportConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	BaseURL           string   `json:"base_url" yaml:"base_url"`
	APIKey            string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	QueueSize         int      `json:"queue_size" yaml:"queue_size"`
	Timeout           Duration `json:"timeout" yaml:"timeout"`
	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
}

// SimulationConfig drives the paper venue's price feeds.
type SimulationConfig struct {
	Feeds []FeedConfig `json:"feeds,omitempty" yaml:"feeds,omitempty"`
}

type FeedConfig struct {
	Symbol   string    `json:"symbol" yaml:"symbol"`
	Start    float64   `json:"start" yaml:"start"`
	Spread   float64   `json:"spread" yaml:"spread"`
	MaxStep  float64   `json:"max_step" yaml:"max_step"`
	Interval Duration  `json:"interval" yaml:"interval"`
	Seed     int64     `json:"seed" yaml:"seed"`
	Path     []float64 `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoadEnv loads .env style files into the environment. Missing files are
// skipped; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Bare $ is left alone so passwords
// containing it survive.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadFromFile loads configuration from a file (YAML, or JSON), expanding
// ${VAR} references, applying defaults and validating.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	data = expandEnv(data)
	cfg := &Config{}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = &Config{}
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// SetDefaults fills every unset tunable.
func (c *Config) SetDefaults() {
	for i := range c.Accounts {
		c.Accounts[i].setDefaults()
	}

	if c.Loop.Period == 0 {
		c.Loop.Period = Duration(500 * time.Millisecond)
	}
	if c.Loop.TickTimeout == 0 {
		c.Loop.TickTimeout = Duration(10 * time.Second)
	}

	b := &c.Broker
	if b.Venue == "" {
		b.Venue = "paper"
	}
	if b.QuoteRetries == 0 {
		b.QuoteRetries = 10
	}
	if b.QuoteBackoff == 0 {
		b.QuoteBackoff = Duration(500 * time.Millisecond)
	}
	if b.CloseRetries == 0 {
		b.CloseRetries = 3
	}
	if b.ClosePassBackoff == 0 {
		b.ClosePassBackoff = Duration(time.Second)
	}
	if b.CloseTimeout == 0 {
		b.CloseTimeout = Duration(2 * time.Minute)
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./state"
	}
	if c.Journal.Type == "" {
		c.Journal.Type = "csv"
	}
	if c.Journal.Path == "" && c.Journal.Type != "none" {
		if c.Journal.Type == "sqlite" {
			c.Journal.Path = "./journal.db"
		} else {
			c.Journal.Path = "./journal.csv"
		}
	}

	if c.Report.QueueSize == 0 {
		c.Report.QueueSize = 256
	}
	if c.Report.Timeout == 0 {
		c.Report.Timeout = Duration(10 * time.Second)
	}
	if c.Report.HeartbeatInterval == 0 {
		c.Report.HeartbeatInterval = Duration(30 * time.Second)
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8088"
	}
	c.Log.SetDefaults()
}

func (a *AccountConfig) setDefaults() {
	if a.Symbol == "" {
		a.Symbol = "XAUUSD"
	}
	if a.Magic == 0 {
		a.Magic = 20250101
	}
	if a.Comment == "" {
		a.Comment = "grid"
	}
	if a.Entry.Lot == 0 {
		a.Entry.Lot = 0.1
	}
	if a.Entry.NumOrders == 0 {
		a.Entry.NumOrders = 1
	}
	t := &a.Entry.Trailing
	if t.Activate == nil {
		t.Activate = ptr(30.0)
	}
	if t.Back == nil {
		t.Back = ptr(20.0)
	}
	if t.Step == nil {
		t.Step = ptr(10.0)
	}
	if t.Buffer == nil {
		t.Buffer = ptr(1.0)
	}
	if a.Grid.StepPips == 0 {
		a.Grid.StepPips = 10
	}
	if a.Grid.Lot == 0 {
		a.Grid.Lot = 0.1
	}
	if a.Grid.MaxLevels == nil {
		a.Grid.MaxLevels = ptr(4)
	}
	if a.Grid.NumOrders == 0 {
		a.Grid.NumOrders = 1
	}
}

// Validate checks the configuration; errors name the offending field.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts: at least one account is required")
	}
	seen := map[string]bool{}
	for i, a := range c.Accounts {
		p := fmt.Sprintf("accounts[%d]", i)
		if a.ID == "" {
			return fmt.Errorf("%s.id is required", p)
		}
		if seen[a.ID] {
			return fmt.Errorf("%s.id %q is duplicated", p, a.ID)
		}
		seen[a.ID] = true
		if _, ok := market.Lookup(a.Symbol); !ok && a.PipSize <= 0 {
			return fmt.Errorf("%s.symbol %q is unknown; set pip_size", p, a.Symbol)
		}
		if a.Entry.Lot <= 0 {
			return fmt.Errorf("%s.entry.lot must be positive", p)
		}
		if a.Entry.NumOrders < 1 {
			return fmt.Errorf("%s.entry.num_orders must be at least 1", p)
		}
		if a.Grid.StepPips <= 0 {
			return fmt.Errorf("%s.grid.step_pips must be positive", p)
		}
		if a.Grid.Lot <= 0 {
			return fmt.Errorf("%s.grid.lot must be positive", p)
		}
		if a.Grid.Levels() < 0 {
			return fmt.Errorf("%s.grid.max_levels must not be negative", p)
		}
		if a.Grid.NumOrders < 1 {
			return fmt.Errorf("%s.grid.num_orders must be at least 1", p)
		}
		t := a.Entry.Trailing
		if t.Enabled && (deref(t.Activate) < 0 || deref(t.Back) < 0 || deref(t.Step) < 0 || deref(t.Buffer) < 0) {
			return fmt.Errorf("%s.entry.trailing distances must not be negative", p)
		}
	}

	if c.Loop.Period.Std() <= 0 {
		return fmt.Errorf("loop.period must be positive")
	}
	if c.Loop.TickTimeout.Std() <= 0 {
		return fmt.Errorf("loop.tick_timeout must be positive")
	}
	if c.Broker.Venue != "paper" {
		return fmt.Errorf("broker.venue %q is not supported", c.Broker.Venue)
	}
	if c.Broker.QuoteRetries < 1 || c.Broker.CloseRetries < 1 {
		return fmt.Errorf("broker retries must be at least 1")
	}
	// a tick waits (retries-1) backoffs before giving up on a quote
	if wait := time.Duration(c.Broker.QuoteRetries-1) * c.Broker.QuoteBackoff.Std(); wait >= c.Loop.TickTimeout.Std() {
		return fmt.Errorf("broker.quote_retries x broker.quote_backoff (%s) must be shorter than loop.tick_timeout (%s)",
			wait, c.Loop.TickTimeout.Std())
	}
	switch c.Store.Driver {
	case "file", "sqlite", "badger":
	default:
		return fmt.Errorf("store.driver must be 'file', 'sqlite' or 'badger'")
	}
	switch c.Journal.Type {
	case "csv", "sqlite", "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	if c.Report.Enabled && c.Report.BaseURL == "" {
		return fmt.Errorf("report.base_url is required when reporting is enabled")
	}
	for i, f := range c.Simulation.Feeds {
		if f.Symbol == "" {
			return fmt.Errorf("simulation.feeds[%d].symbol is required", i)
		}
		if f.Start <= 0 && len(f.Path) == 0 {
			return fmt.Errorf("simulation.feeds[%d] needs start or path", i)
		}
		if f.Spread < 0 {
			return fmt.Errorf("simulation.feeds[%d].spread must not be negative", i)
		}
	}
	return nil
}

// Account returns the account with id.
func (c *Config) Account(id string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// GridParams builds the engine parameters of one account.
func (c *Config) GridParams(a AccountConfig) grid.Params {
	pip := a.PipSize
	if pip <= 0 {
		if m, ok := market.Lookup(a.Symbol); ok {
			pip = m.PipSize
		}
	}
	t := a.Entry.Trailing
	return grid.Params{
		Account: a.ID,
		Symbol:  a.Symbol,
		Tag:     a.Magic,
		Comment: a.Comment,
		PipSize: pip,

		StepPips: a.Grid.StepPips,

		EntryLot:    a.Entry.Lot,
		EntryOrders: a.Entry.NumOrders,

		AveragingLot:   a.Grid.Lot,
		MaxLevels:      a.Grid.Levels(),
		OrdersPerLevel: a.Grid.NumOrders,

		TrailingEnabled:   t.Enabled,
		TrailActivatePips: deref(t.Activate),
		TrailBackPips:     deref(t.Back),
		TrailStepPips:     deref(t.Step),
		TrailBufferPips:   deref(t.Buffer),

		QuoteRetries:     c.Broker.QuoteRetries,
		QuoteBackoff:     c.Broker.QuoteBackoff.Std(),
		CloseRetries:     c.Broker.CloseRetries,
		ClosePassBackoff: c.Broker.ClosePassBackoff.Std(),
	}
}

// Default returns a runnable paper configuration with one account.
func Default() *Config {
	c := &Config{
		Accounts: []AccountConfig{{
			ID:     "paper-1",
			Symbol: "XAUUSD",
			Entry: EntryConfig{
				Trailing: TrailingConfig{Enabled: true},
			},
		}},
		Journal: JournalConfig{Type: "csv", Path: "./journal.csv"},
		Simulation: SimulationConfig{
			Feeds: []FeedConfig{{
				Symbol:   "XAUUSD",
				Start:    2650.00,
				Spread:   0.20,
				MaxStep:  0.40,
				Interval: Duration(time.Second),
				Seed:     1,
			}},
		},
	}
	c.SetDefaults()
	return c
}

func ptr[T any](v T) *T { return &v }

func deref[T int | float64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
