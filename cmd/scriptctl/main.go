package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomis52/scriptdash/config"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "scriptctl",
		Short:         "Run dashboard scripts from the command line",
		Long:          "scriptctl runs catalog scripts headlessly and manages the run history shared with the dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newHistoryCommand(flags))
	rootCmd.AddCommand(newClearCommand(flags))
	rootCmd.AddCommand(newValidateCommand(flags))
	rootCmd.AddCommand(newVersionCommand(flags))
	return rootCmd
}

func (f *globalFlags) load() (config.Config, error) {
	if f.configPath == "" {
		return config.Config{}, fmt.Errorf("config flag (-c or --config) is required")
	}
	return config.LoadConfig(f.configPath)
}
