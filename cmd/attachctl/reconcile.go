package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/config"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var (
		dryRun      bool
		verbose     bool
		concurrency int
		minAge      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete blobs that no attachment record references",
		Long: `Lists every blob in storage, subtracts the paths referenced by attachment
records and configured path sources, and deletes the rest.

Individual delete failures are reported and do not change the exit status.
The command exits non-zero when storage cannot be listed, when a path
source cannot be read, or when records are kept in memory while storage is
persistent (set RECONCILE_ALLOW_EPHEMERAL to override). Nothing is deleted
in those cases.

Orphans younger than --min-age (default 10m, RECONCILE_MIN_AGE) are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				opts.logLevel = slog.LevelInfo
			}
			if cmd.Flags().Changed("concurrency") {
				opts.overrides = append(opts.overrides, func(c *config.Config) error {
					c.ReconcileConcurrency = concurrency
					return nil
				})
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(cfg *config.Config, comps *config.Components) error {
				runOpts := reconcile.RunOptions{DryRun: dryRun, Verbose: verbose, MinAge: cfg.ReconcileMinAge}
				if cmd.Flags().Changed("min-age") {
					runOpts.MinAge = minAge
				}

				report, err := comps.Reconciler.Run(cmd.Context(), runOpts)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return writeReport(cmd.OutOrStdout(), report, verbose)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every orphan")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "parallel deletes")
	cmd.Flags().DurationVar(&minAge, "min-age", 0, "skip orphans modified more recently than this (overrides RECONCILE_MIN_AGE)")
	return cmd
}

func writeReport(w io.Writer, report *reconcile.Report, verbose bool) error {
	for _, o := range report.Outcomes {
		switch o.Status {
		case reconcile.StatusFailed:
			if err := writePlain(w, "%s %s: %s\n", color.RedString("FAILED"), o.Path, o.Error); err != nil {
				return err
			}
		case reconcile.StatusDeleted:
			if verbose {
				if err := writePlain(w, "%s %s (%s)\n", color.GreenString("deleted"), o.Path, humanize.Bytes(uint64(o.SizeBytes))); err != nil {
					return err
				}
			}
		case reconcile.StatusWouldDelete:
			if err := writePlain(w, "%s %s (%s)\n", color.YellowString("[DRY-RUN] would delete"), o.Path, humanize.Bytes(uint64(o.SizeBytes))); err != nil {
				return err
			}
		case reconcile.StatusSkipped:
			if verbose {
				if err := writePlain(w, "%s %s\n", color.New(color.Faint).Sprint("skipped"), o.Path); err != nil {
					return err
				}
			}
		}
	}

	mode := "applied"
	if report.DryRun {
		mode = "dry run"
	}
	summary := fmt.Sprintf("%s: referenced=%d present=%d orphans=%d deleted=%d failed=%d skipped=%d reclaimed=%s",
		mode, report.ReferencedCount, report.PresentCount, report.OrphanCount,
		report.DeletedCount, report.FailedCount, report.SkippedCount,
		humanize.Bytes(uint64(report.ReclaimedBytes)))
	if report.FailedCount > 0 {
		summary = color.YellowString(summary)
	}
	return writePlain(w, "%s\n", summary)
}
