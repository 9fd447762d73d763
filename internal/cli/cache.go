package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/app"
	"github.com/JakeFAU/announcement-crawler/internal/clock/system"
	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

func newCacheCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}
	cmd.AddCommand(newCacheSweepCmd(rt))
	cmd.AddCommand(newCacheListCmd(rt))
	return cmd
}

func newCacheSweepCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(rt, func(c crawler.ResponseCache) error {
				removed, err := c.Sweep(cmd.Context())
				if err != nil {
					return fmt.Errorf("sweep cache: %w", err)
				}
				rt.logger.Info("cache swept", zap.Int("removed", removed))
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
				return nil
			})
		},
	}
}

func newCacheListCmd(rt *runtime) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cache entries with their metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(rt, func(c crawler.ResponseCache) error {
				entries, err := c.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list cache: %w", err)
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(entries); err != nil {
						return fmt.Errorf("write entries: %w", err)
					}
					return nil
				}
				return writeEntryTable(cmd, entries)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func withCache(rt *runtime, fn func(crawler.ResponseCache) error) error {
	c, client, err := app.NewCache(rt.cfg, system.New(), rt.logger)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() {
			if cerr := client.Close(); cerr != nil {
				rt.logger.Warn("redis client close failed", zap.Error(cerr))
			}
		}()
	}
	return fn(c)
}

func writeEntryTable(cmd *cobra.Command, entries []crawler.CacheEntryInfo) error {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tNAME\tCACHED AT\tFORMAT\tSTATUS\tURL")
	for _, e := range entries {
		status := "live"
		if e.Expired {
			status = "expired"
		}
		format := e.Metadata.Format
		if format == "" {
			format = crawler.CacheFormatEnveloped
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Namespace, e.Name, e.CachedAt.Format(time.DateTime), format, status, e.Metadata.OriginalURL)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	return nil
}
