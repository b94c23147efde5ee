package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance
	Log *logrus.Logger

	mu       sync.Mutex
	cfg      Config
	out      io.Writer = os.Stdout
	accounts map[string]*logrus.Logger
)

// Config describes log output. File and AccountDir are optional; both are
// rotated with lumberjack.
type Config struct {
	Level string `yaml:"level" json:"level"`

	// File receives every line in addition to stdout.
	File string `yaml:"file" json:"file"`

	// AccountDir, when set, additionally writes each account's lines to
	// bot_<account>.log in that directory.
	AccountDir string `yaml:"account_dir" json:"account_dir"`

	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress"`
	JSON       bool `yaml:"json" json:"json"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 50
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 14
	}
}

func init() {
	Log = newLogger(logrus.InfoLevel, false, os.Stdout)
	accounts = map[string]*logrus.Logger{}
}

func newLogger(level logrus.Level, asJSON bool, w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	if asJSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	l.SetOutput(w)
	return l
}

func (c Config) rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// Init replaces the global logger. Account loggers created before Init are
// discarded.
func Init(c Config) error {
	return InitWithWriter(c, os.Stdout)
}

// InitWithWriter is Init with a console writer other than stdout.
func InitWithWriter(c Config, console io.Writer) error {
	c.SetDefaults()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{console}
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return err
		}
		writers = append(writers, c.rotating(c.File))
	}
	if c.AccountDir != "" {
		if err := os.MkdirAll(c.AccountDir, 0o755); err != nil {
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()

	cfg = c
	out = io.MultiWriter(writers...)
	accounts = map[string]*logrus.Logger{}
	Log = newLogger(level, c.JSON, out)
	return nil
}

// ForAccount returns an entry tagged with the account id. With AccountDir
// configured the lines also go to the account's own rotating file.
func ForAccount(account string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()

	if cfg.AccountDir == "" || account == "" {
		return Log.WithField("account", account)
	}
	l, ok := accounts[account]
	if !ok {
		file := cfg.rotating(filepath.Join(cfg.AccountDir, "bot_"+account+".log"))
		l = newLogger(Log.GetLevel(), cfg.JSON, io.MultiWriter(out, file))
		accounts[account] = l
	}
	return l.WithField("account", account)
}

// WithComponent tags the global logger with a component name.
func WithComponent(name string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return Log.WithField("component", name)
}
