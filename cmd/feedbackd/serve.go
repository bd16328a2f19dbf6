package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-feedback-pipeline/internal/alerts"
	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	httpapi "github.com/tbourn/go-feedback-pipeline/internal/http"
	"github.com/tbourn/go-feedback-pipeline/internal/observability"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
	"github.com/tbourn/go-feedback-pipeline/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, classification workers and reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(db)

	registry := providers.DefaultRegistry()
	if err := seedIntegrations(ctx, db, registry, cfg.IntegrationsFile); err != nil {
		return err
	}

	q, err := openQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()
	prometheus.MustRegister(queue.NewDepthGauge(q))

	hub := fanout.NewHub(fanout.DefaultBuffer)
	pub, closeEvents, err := openEvents(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer closeEvents()

	evaluator := alerts.New(cfg.Alerts.SpikeWindow, cfg.Alerts.SpikeBaseline, cfg.Alerts.SpikeThresholdPct, pub)

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}

	ingest := &services.IngestService{DB: db, Queue: q, Alerts: evaluator}
	if cfg.QuotaMonthlyLimit > 0 {
		ingest.Quota = &services.DBQuota{DB: db, MonthlyLimit: cfg.QuotaMonthlyLimit}
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Queue:    q,
		Registry: registry,
		Ingest:   ingest,
		Secrets:  &services.IntegrationService{DB: db, Registry: registry},
		Events:   hub,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	pool := &worker.Pool{
		DB:         db,
		Queue:      q,
		Classifier: classifier,
		Limiter:    classifierLimiter(cfg.Classifier.RPS),
		Policy: worker.RetryPolicy{
			Base:   cfg.Worker.RetryBase,
			Max:    cfg.Worker.RetryMax,
			Jitter: cfg.Worker.RetryJitter,
		},
		Alerts:       evaluator,
		Publisher:    pub,
		Concurrency:  cfg.Worker.Concurrency,
		Timeout:      cfg.Worker.Timeout,
		LeaseTimeout: cfg.Worker.LeaseTimeout,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}
	reconciler := &worker.Reconciler{
		DB:           db,
		Queue:        q,
		PendingGrace: cfg.Worker.PendingGrace,
		Interval:     cfg.Worker.SweepInterval,
	}

	// Records left pending or leased by a previous process go back on the
	// queue before new traffic arrives.
	if res, err := reconciler.Sweep(ctx); err != nil {
		log.Warn().Err(err).Msg("startup sweep failed")
	} else {
		log.Info().Int("reclaimed", res.Reclaimed).Int("requeued", res.Requeued).Int("dropped", res.Dropped).Msg("startup sweep")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("queue", cfg.QueueBackend).Str("classifier", cfg.Classifier.Mode).Msg("feedbackd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info().Msg("feedbackd stopped")
	return err
}
