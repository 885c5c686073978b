// Package cmd defines the pncp command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pncp-crawler/internal/app"
	"github.com/JakeFAU/pncp-crawler/internal/clock/system"
	"github.com/JakeFAU/pncp-crawler/internal/config"
	"github.com/JakeFAU/pncp-crawler/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger builds the per-command logger; tests replace it.
var newLogger = func(cfg config.Config, command string) (*zap.Logger, error) {
	file := ""
	if cfg.Logging.Dir != "" {
		file = logging.FilePath(cfg.Logging.Dir, command, system.New().Now())
	}
	return logging.New(cfg.Logging.Development, file)
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "pncp",
		Short: "Crawls, unifies and searches PNCP procurement listings.",
		Long: `pncp pages the PNCP search API into delimited tables, fetches each
listing's items and files, inspects compressed attachments, and unifies the
results into JSON, CSV and Markdown views with a local search index.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			applyCrawlOverrides(cmd, v)
			cfg, err := config.Decode(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.Name())
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().Bool("verbose", false, "debug-level console logging")
	mustBind(v, "logging.development", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(
		newCrawlCmd(v),
		newSanitizeCmd(),
		newUnifyCmd(v),
		newIndexCmd(),
		newSearchCmd(v),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("no flag bound to %s", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
