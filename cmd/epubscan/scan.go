package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubscan/internal/batch"
	"github.com/yuanying/epubscan/internal/lastdir"
	"github.com/yuanying/epubscan/internal/report"
)

// scanOptions are the resolved inputs of one scan.
type scanOptions struct {
	Folder  string
	Checks  []string
	Workers int
	Output  string
	All     bool
}

func newScanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [folder]",
		Short: "Analyze every EPUB under a folder",
		Long: `Analyze every .epub file under folder and print one result per book.
Without a folder argument the last scanned folder is offered as default.

Checks: ` + checkNames() + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.readScanOptions(cmd, args)
			if err != nil {
				return err
			}
			return a.runScan(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringSlice("checks", nil, "comma-separated checks to run (default from config: all)")
	cmd.Flags().Int("workers", 0, "archives analyzed in parallel (default from config)")
	cmd.Flags().StringP("output", "o", "", "output format: text, json or yaml (default from config)")
	cmd.Flags().Bool("all", false, "also print books without findings")
	return cmd
}

func checkNames() string {
	names := make([]string, len(report.AllChecks))
	for i, c := range report.AllChecks {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// readScanOptions merges flags over the loaded configuration and asks for
// the folder when none is given.
func (a *app) readScanOptions(cmd *cobra.Command, args []string) (scanOptions, error) {
	opts := scanOptions{
		Checks:  a.cfg.Checks,
		Workers: a.cfg.Workers,
		Output:  a.cfg.Output,
	}

	if cmd.Flags().Changed("workers") {
		workers, _ := cmd.Flags().GetInt("workers")
		if workers < 1 {
			return opts, fmt.Errorf("invalid --workers %d: must be >= 1", workers)
		}
		opts.Workers = workers
	}
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		output = strings.ToLower(output)
		if !slices.Contains(report.Formats, output) {
			return opts, fmt.Errorf("invalid --output %q: must be one of %s", output, strings.Join(report.Formats, ", "))
		}
		opts.Output = output
	}
	if checks, _ := cmd.Flags().GetStringSlice("checks"); len(checks) > 0 {
		if _, err := report.ParseChecks(checks); err != nil {
			return opts, fmt.Errorf("invalid --checks: %w", err)
		}
		opts.Checks = checks
	}
	opts.All, _ = cmd.Flags().GetBool("all")

	if len(args) == 1 {
		opts.Folder = args[0]
		return opts, nil
	}
	folder, err := lastdir.New(a.cfg.LastFolderFile).Prompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return opts, err
	}
	opts.Folder = folder
	return opts, nil
}

func (a *app) runScan(ctx context.Context, w io.Writer, opts scanOptions) error {
	reportOpts, err := a.cfg.ReportOptions(opts.Checks, a.logger)
	if err != nil {
		return err
	}
	runner := batch.NewRunner(batch.Options{
		Workers: opts.Workers,
		Report:  reportOpts,
		Logger:  a.logger,
	})

	reports, err := runner.Run(ctx, opts.Folder)
	if werr := report.Write(w, reports, opts.Output, opts.All); werr != nil {
		return werr
	}
	return err
}
