package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/config"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/logging"
	"github.com/nomis52/scriptdash/metrics"
	"github.com/nomis52/scriptdash/process"
	"github.com/nomis52/scriptdash/runner"
)

// Exit statuses of the run command for runs that didn't succeed.
const (
	exitRunError   = 1
	exitRunAborted = 2
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var argFlags []string

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script and record it in the history",
		Long: "Run a catalog script in the foreground, printing its output. The run is recorded in " +
			"the same history file and log directory the dashboard uses. The exit status is 0 on " +
			"success, 1 on error and 2 if the run was interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			values, err := parseArgFlags(argFlags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScript(ctx, cfg, args[0], values, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&argFlags, "arg", nil, "Script argument as name=value (repeatable)")
	return cmd
}

func parseArgFlags(raw []string) (map[string]string, error) {
	values := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: expected name=value", kv)
		}
		values[name] = value
	}
	return values, nil
}

// linePrinter writes script output to the terminal.
type linePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *linePrinter) PublishLog(_ string, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *linePrinter) PublishStatus(string, string) {}

func runScript(ctx context.Context, cfg config.Config, name string, values map[string]string, out io.Writer) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	cat, err := catalog.Load(cfg.ScriptsFile)
	if err != nil {
		return err
	}
	store, err := history.NewFileStore(cfg.HistoryFile, cfg.LogDir, logger.Logger,
		history.WithMaxRecords(cfg.History.MaxRecords))
	if err != nil {
		return err
	}

	opts := []runner.Option{
		runner.WithStore(store),
		runner.WithLauncher(process.NewExec(
			process.WithGracePeriod(cfg.Runner.GracePeriod),
			process.WithLogger(logger.Logger),
		)),
		runner.WithPublisher(&linePrinter{out: out}),
		runner.WithInterpreter(cfg.Runner.Interpreter),
		runner.WithEnv(cfg.Runner.Env),
	}

	push := newPushRegistry(cfg, logger.Logger)
	if push != nil {
		runMetrics, err := metrics.NewRunMetrics(push)
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithMetrics(runMetrics))
	}

	registry := runner.New(logger.Logger, runner.StaticCatalog(cat), cfg.LogDir, opts...)
	defer registry.Shutdown(context.Background())

	if err := registry.RunWithValues(name, values); err != nil {
		return err
	}

	// Interrupts abort the run; it is still recorded.
	stopCancel := context.AfterFunc(ctx, func() {
		if err := registry.Cancel(name); err != nil {
			logger.Debug("cancel after interrupt", "script", name, "error", err)
		}
	})
	defer stopCancel()

	if err := registry.Wait(context.Background(), name); err != nil {
		return err
	}

	if push != nil {
		if err := push.Flush(context.Background()); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	record, ok := registry.LastRun(name)
	if !ok {
		return fmt.Errorf("run of %q was not recorded", name)
	}
	switch record.Status {
	case history.StatusSuccess:
		return nil
	case history.StatusAborted:
		return &exitError{code: exitRunAborted, msg: fmt.Sprintf("script %q was aborted", name)}
	default:
		return &exitError{code: exitRunError, msg: fmt.Sprintf("script %q failed, log: %s", name, record.LogFile)}
	}
}

func newPushRegistry(cfg config.Config, logger *slog.Logger) *metrics.PushRegistry {
	if cfg.Monitoring.VictoriaMetricsURL == "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("failed to get hostname", "error", err)
		hostname = "unknown"
	}
	return metrics.NewPushRegistry(metrics.PushConfig{
		URL:      cfg.Monitoring.VictoriaMetricsURL,
		Prefix:   cfg.Monitoring.MetricsPrefix,
		Job:      cfg.Monitoring.JobName,
		Instance: hostname,
	})
}
