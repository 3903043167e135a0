package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oggyb/tindecisos/internal/config"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ModuleKey tags lines with the package that wrote them, below the
// process-wide component.
const ModuleKey = "module"

type Config struct {
	Level      string
	Format     Format
	Component  string
	WithSource bool
	// Output defaults to os.Stdout. The terminal client points it at stderr
	// so log lines do not interleave with rendered screens.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	global *slog.Logger
	level  = new(slog.LevelVar)
	cfg    = Config{Level: "info", Format: FormatText}
)

// InitFromConfig initializes the global logger from the server config.
func InitFromConfig(c *config.Config) {
	if c == nil {
		Init(nil)
		return
	}
	Init(&Config{
		Level:      c.Log.Level,
		Format:     Format(c.Log.Format),
		Component:  c.Log.Component,
		WithSource: c.Log.Source,
	})
}

// Init replaces the global logger. Loggers handed out earlier keep their
// handler but follow level changes.
func Init(c *Config) {
	mu.Lock()
	defer mu.Unlock()

	if c != nil {
		cfg = *c
	}
	level.Set(parseLevel(cfg.Level))
	global = newLogger(cfg)
}

func newLogger(c Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: c.WithSource,
	}
	if c.Format != FormatJSON {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.DateTime))
			}
			return a
		}
	}

	out := c.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(string(c.Format), string(FormatJSON)) {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if c.Component != "" {
		l = l.With("component", c.Component)
	}
	return l
}

// L returns the global logger, initializing it with defaults on first use.
func L() *slog.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		level.Set(parseLevel(cfg.Level))
		global = newLogger(cfg)
	}
	return global
}

// Module returns the global logger tagged with a module name.
func Module(name string) *slog.Logger {
	return L().With(ModuleKey, name)
}

// ModuleOf tags parent with a module name; a nil parent means the global
// logger. Callers that already carry request or user attributes use it to
// keep them.
func ModuleOf(parent *slog.Logger, name string) *slog.Logger {
	if parent == nil {
		return Module(name)
	}
	return parent.With(ModuleKey, name)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
