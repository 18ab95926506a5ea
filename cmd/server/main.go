package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ad-waterfall/internal/adsdk"
	"ad-waterfall/internal/platform/config"
	"ad-waterfall/internal/platform/logger"
	"ad-waterfall/internal/platform/metrics"
	"ad-waterfall/internal/waterfall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, err := config.Parse()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	sdk := adsdk.NewSimulator(adsdk.Behavior{
		Latency:         cfg.Simulator.Latency,
		FailRate:        cfg.Simulator.FailRate,
		DisplayDuration: cfg.Simulator.Display,
	}, uint64(time.Now().UnixNano()))

	ids := lo.Map(cfg.Sources, func(s string, _ int) waterfall.SourceID { return waterfall.SourceID(s) })
	ctrl, err := waterfall.NewController(sdk, ids, waterfall.Options{
		LoadTimeout: cfg.LoadTimeout,
		Retry:       waterfall.RetryPolicy{Initial: cfg.RetryInitial, Max: cfg.RetryMax},
		Preload:     cfg.Preload,
		Logger:      log,
		Metrics:     met,
	})
	if err != nil {
		log.Error("create controller", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	h := waterfall.NewHandler(waterfall.NewService(ctrl), log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetReadySources(ctrl.ReadyCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	h.Routes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			slog.String("port", cfg.Port),
			slog.Any("sources", cfg.Sources),
			slog.Duration("load_timeout", cfg.LoadTimeout),
			slog.String("log_level", cfg.LogLevel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		ctrl.Close()
		os.Exit(1)
	}

	log.Info("server stopped")
}
