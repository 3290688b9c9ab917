// Package cmd defines the linkcrawler command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcrawler/internal/config"
	"github.com/JakeFAU/linkcrawler/internal/services"
)

// newServices is the shared services factory. It's a variable so tests can
// inject a store without a database.
var newServices = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services.Services, error) {
	return services.New(ctx, cfg, logger)
}

// newRootCmd builds the root command with its flags bound into a fresh Viper
// instance, so every invocation resolves flags, env and config file in the
// same order.
func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "linkcrawler",
		Short: "Crawl and store every link reachable from a seed URL",
		Long: `linkcrawler starts at a seed URL, follows https links breadth-first
under a concurrency limit and records every visited address in a database.
The crawl ends when no links remain or when the time budget runs out.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, v, cfgFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("url", "", "seed URL to start crawling from")
	flags.Bool("restrict-domain", false, "only follow links on the seed's host")
	flags.Int("seconds", 30, "crawl time budget in seconds")
	flags.String("dsn", "", "database DSN (postgres URL or sqlite file path)")
	flags.String("driver", config.DriverPostgres, "database driver: postgres or sqlite")
	flags.Int("concurrency", 16, "maximum pages fetched at once")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("dev-logs", true, "human readable development logs")

	bindings := map[string]string{
		"crawler.url":             "url",
		"crawler.restrict_domain": "restrict-domain",
		"crawler.seconds":         "seconds",
		"db.dsn":                  "dsn",
		"db.driver":               "driver",
		"crawler.concurrency":     "concurrency",
		"metrics.addr":            "metrics-addr",
		"logging.development":     "dev-logs",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

// Execute runs the root command and exits non-zero when it fails.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
