package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"governance-gateway/config"
	"governance-gateway/httpapi"
	"governance-gateway/logging"
	"governance-gateway/metrics"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("GATEWAY_CONFIG"), "caminho do arquivo YAML de configuração")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	app, err := build(ctx, cfg, logger, m, target)
	if err != nil {
		return err
	}
	defer app.close(logger)

	if cfg.Admin.Token == "" {
		logger.Warn("ADMIN_TOKEN not set, security api disabled", "operation", "startup", "outcome", "degraded")
	}
	handler := httpapi.NewHandler(httpapi.Deps{
		Health:          app.health,
		Security:        app.monitor,
		DashboardCache:  app.dashboardCache,
		DashboardTTL:    cfg.Security.DashboardTTL,
		Gatherer:        reg,
		Upstream:        app.upstream,
		Log:             logger,
		AdminToken:      cfg.Admin.Token,
		SecurityLimiter: app.securityLimiter,
		TrustXFF:        cfg.Rate.TrustXFF,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		"addr", cfg.ListenAddr,
		"upstream", target.String(),
		"rate_enabled", cfg.Rate.Enabled,
		"rate_backend", cfg.Rate.Backend,
		"burst_enabled", cfg.Burst.Enabled,
		"burst_rps", cfg.Burst.RPS,
		"burst_size", cfg.Burst.Burst,
		"concurrency_max", cfg.Concurrency.Max,
		"stats_enabled", cfg.Stats.Enabled,
		"postgres", cfg.Database.URL != "",
		"kafka_brokers", len(cfg.Kafka.Brokers),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	log := logging.Component(logger, "proxy", "adapter")
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", "operation", "forward", "outcome", "failed", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}
