// Package cli defines the noticecrawler command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/announcement-crawler/internal/config"
	"github.com/JakeFAU/announcement-crawler/internal/logging"
)

// DefaultConfigFile is read from the working directory when --config is not
// given and the file exists.
const DefaultConfigFile = "config.json"

// Version is stamped at build time with -ldflags.
var Version = "dev"

// runtime carries state resolved by the root command for its subcommands.
type runtime struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}
	cmd := &cobra.Command{
		Use:   "noticecrawler",
		Short: "Crawls listed-company announcements and downloads their documents.",
		Long: `noticecrawler walks the paginated announcement listing for one issuer,
resolves each announcement's detail record and downloads the attached document
into <output>/<issuer>/<column>/. Listing and detail responses are cached on
disk so reruns only touch the network for new announcements.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skip_setup"] == "true" {
				return nil
			}
			return rt.setup()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&rt.configPath, "config", "",
		fmt.Sprintf("config file, JSON or YAML (default ./%s when present)", DefaultConfigFile))

	cmd.AddCommand(newCrawlCmd(rt))
	cmd.AddCommand(newCacheCmd(rt))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (rt *runtime) setup() error {
	path, err := resolveConfigPath(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt.logger, err = logging.New(logging.Config{
		Development: rt.cfg.Logging.Development,
		Level:       rt.cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(rt.logger)
	rt.logger.Debug("configuration loaded", zap.String("path", path))
	return nil
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if _, err := os.Stat(DefaultConfigFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", DefaultConfigFile, err)
	}
	return DefaultConfigFile, nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the build version",
		Annotations: map[string]string{"skip_setup": "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
