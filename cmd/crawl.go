package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcrawler/internal/config"
	"github.com/JakeFAU/linkcrawler/internal/crawler"
	"github.com/JakeFAU/linkcrawler/internal/logging"
	"github.com/JakeFAU/linkcrawler/internal/metrics"
	"github.com/JakeFAU/linkcrawler/internal/services"
)

const metricsShutdownTimeout = 5 * time.Second

func runCrawl(cmd *cobra.Command, v *viper.Viper, cfgPath string) error {
	cfg, err := config.LoadFrom(v, cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		var initErr *services.ServiceInitError
		if errors.As(err, &initErr) {
			logger.Error("shared service unavailable", zap.String("service", initErr.Service), zap.Error(initErr.Err))
		}
		return err
	}
	defer svc.Close()

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics server started", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown error", zap.Error(err))
			}
		}()
	}

	c, err := crawler.New(crawler.Config{
		Seed:           cfg.Crawler.URL,
		RestrictDomain: cfg.Crawler.RestrictDomain,
		Deadline:       cfg.Deadline(),
		Concurrency:    cfg.Crawler.Concurrency,
		BatchSize:      cfg.Crawler.BatchSize,
		GracePeriod:    cfg.Crawler.GracePeriod,
	}, svc,
		crawler.WithLogger(logger),
		crawler.WithRetryPolicy(crawler.NewExponentialRetryPolicy(
			cfg.Persist.MaxAttempts,
			time.Duration(cfg.Persist.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Persist.BackoffMaxMs)*time.Millisecond,
		)),
	)
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}

	summary, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func printSummary(w io.Writer, s crawler.Summary) {
	reason := "deadline"
	if s.Exhausted {
		reason = "exhausted"
	}
	fmt.Fprintf(w, "run %s finished (%s) after %s\n", s.RunID, reason, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  seed:           %s\n", s.Seed)
	fmt.Fprintf(w, "  visited:        %d\n", s.Visited)
	fmt.Fprintf(w, "  persisted:      %d\n", s.Persisted)
	fmt.Fprintf(w, "  discovered:     %d\n", s.Discovered)
	fmt.Fprintf(w, "  fetch failed:   %d\n", s.FetchFailed)
	fmt.Fprintf(w, "  persist failed: %d\n", s.PersistFailed)
}
