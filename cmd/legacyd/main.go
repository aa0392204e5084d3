// legacyd runs the vault service: persistent store, rules engine, trigger
// scheduler, notifier, and HTTP API. All configuration comes from
// LEGACYCORE_* environment variables.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"legacycore/internal/blob"
	"legacycore/internal/core"
	"legacycore/internal/httpapi"
	"legacycore/internal/notify"
	"legacycore/internal/trigger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := buildLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if err := run(log); err != nil {
		log.Fatalw("legacyd exited", "error", err)
	}
}

func run(log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine())
	if err != nil {
		return err
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(log),
		core.WithMetricsRecorder(recorder),
	)

	notifier := notify.New(notify.NewLogSink(log), notify.WithLogger(log))
	notifier.Start(ctx)
	defer notifier.Wait()

	sched := trigger.New(svc,
		trigger.WithLogger(log),
		trigger.WithNotifications(notifier),
		trigger.WithInterval(sweepInterval()),
	)
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("scheduler stopped", "error", err)
		}
	}()

	api := httpapi.New(svc, blobs,
		httpapi.WithLogger(log),
		httpapi.WithMetrics(registry),
	)
	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("LEGACYCORE_LOG_DEV") == "true" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func listenAddr() string {
	if addr := os.Getenv("LEGACYCORE_HTTP_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func sweepInterval() time.Duration {
	raw := os.Getenv("LEGACYCORE_SWEEP_INTERVAL")
	if raw == "" {
		return trigger.DefaultInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return trigger.DefaultInterval
	}
	return d
}
