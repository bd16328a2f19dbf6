package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/classify"
	"github.com/tbourn/go-feedback-pipeline/internal/config"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/providers"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
	"github.com/tbourn/go-feedback-pipeline/internal/services"
)

// openStore opens the record store and brings the schema up to date.
func openStore(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeStore(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeStore(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// seedIntegrations upserts the secrets listed in INTEGRATIONS_FILE.
func seedIntegrations(ctx context.Context, db *gorm.DB, registry *providers.Registry, path string) error {
	seeds, err := config.LoadIntegrations(path)
	if err != nil {
		return err
	}
	svc := &services.IntegrationService{DB: db, Registry: registry}
	for _, s := range seeds {
		if err := svc.Upsert(ctx, s.TenantID, s.Provider, s.Secret, s.IsActive()); err != nil {
			return fmt.Errorf("seed integration %s/%s: %w", s.TenantID, s.Provider, err)
		}
	}
	if len(seeds) > 0 {
		log.Info().Int("count", len(seeds)).Str("file", path).Msg("integrations seeded")
	}
	return nil
}

func openQueue(ctx context.Context, cfg config.Config) (queue.Queue, error) {
	if cfg.QueueBackend == "redis" {
		q, err := queue.Dial(ctx, cfg.Redis.Addr, cfg.Redis.QueueKey, cfg.QueueCapacity)
		if err != nil {
			return nil, fmt.Errorf("redis queue: %w", err)
		}
		return q, nil
	}
	return queue.NewMemory(cfg.QueueCapacity), nil
}

// openEvents returns the publisher for pipeline events. Without Redis the
// hub is the publisher. With Redis every event goes through the bus and a
// forwarder feeds the local hub, so streams on every instance see it.
func openEvents(ctx context.Context, cfg config.Config, hub *fanout.Hub) (fanout.Publisher, func(), error) {
	if cfg.Redis.Addr == "" {
		return fanout.Multi{hub, eventLog{}}, func() {}, nil
	}
	bus, err := fanout.DialRedisBus(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
	if err != nil {
		return nil, nil, err
	}
	if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	log.Info().Str("channel", bus.Channel()).Msg("event fan-out via redis")
	return fanout.Multi{bus, eventLog{}}, func() { _ = bus.Close() }, nil
}

// eventLog writes alerts to the process log so they survive without a
// stream subscriber.
type eventLog struct{}

func (eventLog) Publish(_ context.Context, ev fanout.Event) error {
	if ev.Type != fanout.EventAlert || ev.Alert == nil {
		return nil
	}
	log.Info().
		Str("tenant_id", ev.TenantID).
		Str("alert_type", string(ev.Alert.Type)).
		Str("severity", string(ev.Alert.Severity)).
		Strs("related_feedback_ids", ev.Alert.RelatedFeedbackIDs).
		Msg("alert raised")
	return nil
}

func buildClassifier(cfg config.Config) (classify.Classifier, error) {
	c := cfg.Classifier
	if c.Mode != "llm" {
		return classify.NewHTTPClient(c.URL, c.APIKey, cfg.Worker.Timeout), nil
	}
	llm, err := classify.NewLLM(classify.LLMOptions{
		Provider:        c.LLMProvider,
		Model:           c.LLMModel,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		AnthropicAPIKey: c.AnthropicAPIKey,
		OllamaHost:      c.OllamaHost,
	})
	if err != nil {
		return nil, err
	}
	return llm, nil
}

// classifierLimiter paces calls across all workers. RPS 0 disables pacing.
func classifierLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
