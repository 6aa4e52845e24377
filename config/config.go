// Package config loads the scriptdash YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/scriptdash/logging"
)

const (
	defaultListenAddr  = ":8080"
	defaultLogDir      = "/var/log/github-scripts"
	defaultHistoryName = "script_run_history.json"
	defaultVersionFile = "/VERSION"
	defaultGracePeriod = 10 * time.Second

	defaultMetricsPrefix = "scriptdash"
	defaultJobName       = "scriptdash"

	// Filtered replaces sensitive values wherever they are displayed.
	Filtered = "***FILTERED***"
)

// DefaultRedact lists the environment variable name fragments whose values
// are never displayed.
var DefaultRedact = []string{
	"GITHUB_TOKEN",
	"TELEGRAM_BOT_ID",
	"SMTP_PWD",
	"GPG_KEY",
	"PASSWORD",
	"SECRET",
	"TOKEN",
}

// Config is the complete scriptdash configuration.
type Config struct {
	Listener ListenerConfig `yaml:"listener"`
	// ScriptsFile is the YAML or JSON script catalog.
	ScriptsFile string `yaml:"scripts_file"`
	// LogDir holds one log file per run.
	LogDir string `yaml:"log_dir"`
	// HistoryFile is the JSON run history. Defaults to a file inside LogDir.
	HistoryFile string `yaml:"history_file"`
	// VersionFile holds the deployed version shown in the UI.
	VersionFile string           `yaml:"version_file"`
	Runner      RunnerConfig     `yaml:"runner"`
	History     HistoryConfig    `yaml:"history"`
	Schedules   []ScheduleConfig `yaml:"schedules"`
	Env         EnvConfig        `yaml:"env"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     logging.Config   `yaml:"logging"`
}

// ListenerConfig holds HTTP listener settings.
type ListenerConfig struct {
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled reports whether HTTPS is configured.
func (l ListenerConfig) TLSEnabled() bool {
	return l.TLSCert != "" && l.TLSKey != ""
}

// RunnerConfig controls how scripts are executed.
type RunnerConfig struct {
	// Interpreter is prepended to the script path, e.g. ["python3", "-u"].
	Interpreter []string `yaml:"interpreter"`
	// GracePeriod is the time between SIGTERM and SIGKILL on cancel.
	GracePeriod time.Duration `yaml:"grace_period"`
	// Env is added to the environment of every script.
	Env map[string]string `yaml:"env"`
}

// HistoryConfig controls run history retention.
type HistoryConfig struct {
	// MaxRecords caps the history file; 0 keeps everything.
	MaxRecords int `yaml:"max_records"`
}

// ScheduleConfig runs a script on a cron schedule.
type ScheduleConfig struct {
	Script   string            `yaml:"script"`
	Schedule string            `yaml:"schedule"`
	Args     map[string]string `yaml:"args"`
}

// EnvConfig controls the environment viewer.
type EnvConfig struct {
	// Redact lists name fragments whose values are masked.
	Redact []string `yaml:"redact"`
}

// IsSensitive reports whether the variable name matches a redact entry.
func (e EnvConfig) IsSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, r := range e.Redact {
		if r != "" && strings.Contains(upper, strings.ToUpper(r)) {
			return true
		}
	}
	return false
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// VictoriaMetricsURL enables pushing metrics after command line runs.
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.ScriptsFile == "" {
		errs = append(errs, errors.New("scripts_file is required"))
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		errs = append(errs, errors.New("listener tls_cert and tls_key must be set together"))
	}
	if c.Runner.GracePeriod < 0 {
		errs = append(errs, errors.New("runner grace_period must not be negative"))
	}
	if c.History.MaxRecords < 0 {
		errs = append(errs, errors.New("history max_records must not be negative"))
	}
	for i, s := range c.Schedules {
		if s.Script == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: script is required", i))
		}
		if s.Schedule == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: schedule is required", i))
		}
	}
	if u := c.Monitoring.VictoriaMetricsURL; u != "" {
		if _, err := url.ParseRequestURI(u); err != nil {
			errs = append(errs, fmt.Errorf("invalid victoriametrics_url: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SetDefaults fills in optional fields.
func (c *Config) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.LogDir == "" {
		c.LogDir = defaultLogDir
	}
	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(c.LogDir, defaultHistoryName)
	}
	if c.VersionFile == "" {
		c.VersionFile = defaultVersionFile
	}
	if c.Runner.GracePeriod == 0 {
		c.Runner.GracePeriod = defaultGracePeriod
	}
	if c.Env.Redact == nil {
		c.Env.Redact = append([]string(nil), DefaultRedact...)
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
}

// Redacted returns a copy safe to display: sensitive runner env values and
// URL credentials are masked.
func (c Config) Redacted() Config {
	out := c
	if c.Runner.Env != nil {
		out.Runner.Env = make(map[string]string, len(c.Runner.Env))
		for k, v := range c.Runner.Env {
			if c.Env.IsSensitive(k) {
				v = Filtered
			}
			out.Runner.Env[k] = v
		}
	}
	if u, err := url.Parse(c.Monitoring.VictoriaMetricsURL); err == nil && u.User != nil {
		u.User = url.User(Filtered)
		out.Monitoring.VictoriaMetricsURL = u.String()
	}
	return out
}

// LoadConfig reads the YAML config at path, applies defaults and validates
// the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
