package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomis52/scriptdash/buildinfo"
	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/server/cron"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file, script catalog and schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.ScriptsFile)
			if err != nil {
				return err
			}
			available := make(map[string]bool)
			for _, name := range cat.Names() {
				available[name] = true
			}
			if _, err := cron.FromSchedules(cfg.Schedules, available); err != nil {
				return fmt.Errorf("invalid schedules: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration validation successful: %s (%d scripts, %d schedules)\n",
				flags.configPath, cat.Len(), len(cfg.Schedules))
			return nil
		},
	}
}

func newVersionCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			props := buildinfo.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scriptctl\n")
			fmt.Fprintf(out, "Built: %s\n", props.BuildTime)
			fmt.Fprintf(out, "Commit: %s\n", props.GitCommit)
			if flags.configPath == "" {
				return
			}
			if cfg, err := flags.load(); err == nil {
				fmt.Fprintf(out, "Version: %s\n", buildinfo.ReadVersion(cfg.VersionFile))
			}
		},
	}
}
