// Package logging sets up the structured logger used across scriptdash and
// holds the live output buffers of running scripts.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "text"})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	logger.Info("script started", "script", "report_open_prs")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
	// AddSource adds the source position to each record.
	AddSource bool `yaml:"add_source"`
}

// Logger wraps slog.Logger with a level that can change at runtime.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New creates a logger from cfg. Unset fields take their defaults.
func New(cfg Config) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.setDefaults()

	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	l, err := NewWithWriter(cfg, w)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	l.closer = closer
	return l, nil
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) (*Logger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.setDefaults()

	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(lvl)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  levelVar,
	}, nil
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

// Close releases the output file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (cfg *Config) validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if cfg.Level != "" && !slices.Contains(validLevels, strings.ToLower(cfg.Level)) {
		return fmt.Errorf("level must be one of: %s", strings.Join(validLevels, ", "))
	}

	validFormats := []string{"json", "text"}
	if cfg.Format != "" && !slices.Contains(validFormats, cfg.Format) {
		return fmt.Errorf("format must be one of: %s", strings.Join(validFormats, ", "))
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", level)
	}
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		return f, f, nil
	}
}
