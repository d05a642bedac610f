package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"governance-gateway/logging"
	"governance-gateway/middleware/ratelimit"
	"governance-gateway/middleware/ratelimit/infra"
	"governance-gateway/security/application"
	secinfra "governance-gateway/security/infra"
)

func main() {
	// Exemplo: injetando as camadas diretamente no seu webserver (sem proxy)
	logger := logging.New(os.Stdout, os.Getenv("LOG_LEVEL"), "text")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	burst := infra.NewBurstStore(5, 10)
	burst.StartJanitor(ctx)
	buckets := infra.NewMemoryBucketStore()
	buckets.StartJanitor(ctx)

	stats := infra.NewMemoryStatsStore()

	store := secinfra.NewMemoryStore()
	audit := &application.AuditLogger{Store: store, Logger: logger}
	detector := application.NewAnomalyDetector(application.DefaultDetectorConfig(), audit, application.WithDetectorLogger(logger))
	monitor := application.NewMonitor(store, audit, detector, application.WithMonitorLogger(logger))
	defer func() { _ = monitor.Close(context.Background()) }()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/api/kyc/", func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-Api-Key")
		monitor.MonitorDataAccess(r.Context(), user, "kyc_verifications", r.URL.Path, "read", nil)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("kyc ok\n"))
	})

	mux.HandleFunc("/_stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":     stats.Total(),
			"by_layer":  stats.ByLayer(),
			"by_action": stats.ByAction(),
		})
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Stats: stats})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:              buckets,
		Auditor:            application.RateLimitAuditor{Monitor: monitor},
		Stats:              stats,
		Log:                logger,
		KeyHeader:          "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor: true,
	})(h)
	h = ratelimit.BurstMiddleware(ratelimit.BurstOptions{
		Store:           burst,
		Stats:           stats,
		KeyHeader:       "X-Api-Key",
		AddBurstHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
