package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/systemx-switch/systemx/internal/config"
	"github.com/systemx-switch/systemx/internal/federation"
	"github.com/systemx-switch/systemx/internal/logbroadcast"
	"github.com/systemx-switch/systemx/internal/logging"
	"github.com/systemx-switch/systemx/internal/router"
	"github.com/systemx-switch/systemx/internal/transport/ws"
	"github.com/systemx-switch/systemx/internal/wake"
	"github.com/systemx-switch/systemx/internal/wakeexec"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	wakeExecutorKind := flag.String("wake-executor", "noop", "Wake executor: noop, webhook, or spawn")
	logBroadcastAddress := flag.String("log-broadcast-address", "logs@system.local","Broadcast address log entries are republished on (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var sink *logbroadcast.Sink
	var sinks []logging.Sink
	if *logBroadcastAddress != "" {
		sink = logbroadcast.New(*logBroadcastAddress)
		sinks = append(sinks, sink)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, sinks...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	wakeExec, err := newWakeExecutor(*wakeExecutorKind, logger)
	if err != nil {
		logger.Fatal("wake executor", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := router.New(logger, cfg,
		router.WithMetrics(router.NewMetrics(promReg)),
		router.WithWakeExecutor(wakeExec),
	)

	if sink != nil {
		sink.Start(ctx, r, logger)
	}

	peer := federation.New(logger, r, cfg.Federation, federation.WithMetrics(federation.NewMetrics(promReg)))

	go r.RunHeartbeatSweeper(ctx)
	go peer.Run(ctx)

	wsServer := ws.NewServer(logger, r.Open)
	muxRouter := mux.NewRouter()
	wsServer.Mount(muxRouter, "/ws")

	httpServer := ws.NewHTTPServer(cfg.ListenAddress, muxRouter)
	var ready atomic.Bool
	adminServer := newAdminServer(cfg.AdminAddress, promReg, &ready)

	go func() {
		logger.Info("listen server starting", zap.String("address", cfg.ListenAddress))
		ready.Store(true)
		if err := serve(httpServer, cfg.TLSCertPath, cfg.TLSKeyPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen server stopped", zap.Error(err))
		}
	}()

	if adminServer != nil {
		go func() {
			logger.Info("admin server starting", zap.String("address", cfg.AdminAddress))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("admin server stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.Duration("grace_period", cfg.ShutdownGracePeriod))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("listen server shutdown", zap.Error(err))
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown", zap.Error(err))
		}
	}
}

func serve(srv *http.Server, certPath, keyPath string) error {
	if certPath != "" && keyPath != "" {
		return srv.ListenAndServeTLS(certPath, keyPath)
	}
	return srv.ListenAndServe()
}

func newAdminServer(addr string, reg *prometheus.Registry, ready *atomic.Bool) *http.Server {
	if addr == "" {
		return nil
	}

	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	serveMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	serveMux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           serveMux,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func newWakeExecutor(kind string, log *zap.Logger) (wake.Executor, error) {
	switch kind {
	case "", "noop":
		return wake.NoopExecutor{Log: log}, nil
	case "webhook":
		return wakeexec.NewWebhookExecutor(log), nil
	case "spawn":
		return wakeexec.NewSpawnExecutor(log), nil
	default:
		return nil, fmt.Errorf("unknown wake executor kind %q", kind)
	}
}
