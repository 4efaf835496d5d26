package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/listing-conversations/internal/auth"
	"github.com/pribylovaa/listing-conversations/internal/clients"
	"github.com/pribylovaa/listing-conversations/internal/config"
	gwhttp "github.com/pribylovaa/listing-conversations/internal/http"
	"github.com/pribylovaa/listing-conversations/internal/metrics"
	"github.com/pribylovaa/listing-conversations/internal/service"
	logctx "github.com/pribylovaa/listing-conversations/pkg/log"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting conversations-gateway", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	cl, err := clients.New(rootCtx, *cfg, log, m)
	if err != nil {
		log.Error("clients_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if cerr := cl.Close(); cerr != nil {
			log.Warn("clients_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	log.Info("clients_initialized", slog.String("backend", cfg.Backend.BaseURL), slog.Bool("cache", cfg.Cache.RedisURL != ""))

	svc := service.New(cl.Backend, cl.Uploader, cl.Listings, m, *cfg)

	apiHandler := gwhttp.NewRouter(svc, auth.NewVerifier(cfg.Auth), gwhttp.Options{
		Logger:         log,
		Timeout:        cfg.Timeouts.Request,
		CORS:           cfg.CORS,
		WriteRate:      cfg.Limits.WriteRatePerSecond,
		WriteBurst:     cfg.Limits.WriteBurst,
		LimiterIdleTTL: cfg.Limits.LimiterIdleTTL,
		MaxUploadBytes: cfg.Upload.MaxSizeBytes,
	})

	// Состояния зрителей живут в памяти шлюза: простаивающие вытесняются в фоне.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		svc.EvictIdleViewers(logctx.Into(sweepCtx, log.With("component", "viewer_sweeper")))
	}()

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Готовность: сервер принимает трафик и кэш владельцев объявлений отвечает.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		if err := cl.Ping(ctx); err != nil {
			log.Warn("readiness_check_failed", slog.String("err", err.Error()))
			http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("gateway_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	// Запросы завершены: останавливаем вытеснение, затем defer закроет клиентов
	// (простаивающие соединения с бэкендом, Redis).
	stopSweep()
	<-sweepDone

	log.Info("service_stopped", slog.Int("viewers_in_memory", svc.Viewers()))
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
