package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/app"
)

type crawlFlags struct {
	stockCode string
	outputDir string
	include   []string
	exclude   []string
	noSweep   bool
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one full pass over
// the listing and prints the run summary as JSON.
func newCrawlCmd(rt *runtime) *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl announcements and download their documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, rt)
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			return runCrawl(cmd, rt)
		},
	}
	cmd.Flags().StringVar(&flags.stockCode, "stock-code", "", "issuer stock code (overrides target.stock_code)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "document root (overrides download.output_dir)")
	cmd.Flags().StringSliceVar(&flags.include, "include", nil, "title keywords to include (repeatable)")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "title keywords to exclude (repeatable)")
	cmd.Flags().BoolVar(&flags.noSweep, "no-sweep", false, "skip the expired cache sweep before crawling")
	return cmd
}

func (f *crawlFlags) apply(cmd *cobra.Command, rt *runtime) {
	if cmd.Flags().Changed("stock-code") {
		rt.cfg.Target.StockCode = f.stockCode
	}
	if cmd.Flags().Changed("output-dir") {
		rt.cfg.Download.OutputDir = f.outputDir
	}
	if cmd.Flags().Changed("include") {
		rt.cfg.Filter.Include = f.include
	}
	if cmd.Flags().Changed("exclude") {
		rt.cfg.Filter.Exclude = f.exclude
	}
	if f.noSweep {
		rt.cfg.Cache.SweepOnStart = false
	}
}

func runCrawl(cmd *cobra.Command, rt *runtime) (err error) {
	ctx := cmd.Context()
	a, err := app.Build(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			rt.logger.Warn("shutdown failed", zap.Error(cerr))
		}
	}()

	summary, runErr := a.Crawl(ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summary); encErr != nil {
		return fmt.Errorf("write summary: %w", encErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("crawl: %w", runErr)
	}
	return nil
}
