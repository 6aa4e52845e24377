package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomis52/scriptdash/config"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/logging"
)

func openStore(cfg config.Config) (*history.FileStore, error) {
	return history.NewFileStore(cfg.HistoryFile, cfg.LogDir, logging.Discard(),
		history.WithMaxRecords(cfg.History.MaxRecords))
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var (
		page    int
		perPage int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			result, err := store.Page(page, perPage)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printHistory(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", history.DefaultPerPage, "Records per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")
	return cmd
}

func printHistory(out io.Writer, p history.Page) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCRIPT\tSTART\tDURATION\tSTATUS\tLOG")
	for _, r := range p.Records {
		fmt.Fprintf(tw, "%s\t%s\t%.1fs\t%s\t%s\n",
			r.Script, r.Start.Local().Format(time.DateTime), r.Duration, r.Status, r.LogFile)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "page %d of %d (%d runs)\n", p.Page, max(p.Pages, 1), p.Total)
	return err
}

func newClearCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all history records and their log files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logs and history cleared.")
			return nil
		},
	}
}
