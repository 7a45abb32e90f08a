package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db/models"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
)

type stubDB struct{}

func (stubDB) Ping(context.Context) error { return nil }

func (stubDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPubSub struct{}

func (stubPubSub) Ping(context.Context) error                 { return nil }
func (stubPubSub) Publisher(name string) *gcppubsub.Publisher { return nil }

type stubRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
}

func (r *stubRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if limit < len(r.events) {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *stubRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *stubRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

type stubResult struct {
	err error
}

func (r stubResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-1", nil
}

type stubPublisher struct {
	err      error
	messages []*gcppubsub.Message
}

func (p *stubPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return stubResult{err: p.err}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.PubSub.BillingTopic = "domain-events"
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.PollIntervalMS = 50
	return cfg
}

func testPublisherLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

func outboxEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"version":    1,
		"eventId":    uuid.NewString(),
		"occurredAt": time.Now().UTC(),
		"data":       map[string]any{"userId": uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventSubscriptionActivated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func newTestService(t *testing.T, repo *stubRepo, pub *stubPublisher) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:     testConfig(),
		Logger:     testPublisherLogger(),
		DB:         stubDB{},
		PubSub:     stubPubSub{},
		Repository: repo,
		PublisherFactory: func(topic string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	first := outboxEvent(t, 0)
	second := outboxEvent(t, 1)
	repo := &stubRepo{events: []models.OutboxEvent{first, second}}
	pub := &stubPublisher{}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}
	if len(repo.published) != 2 || len(repo.failed) != 0 {
		t.Fatalf("published=%d failed=%d", len(repo.published), len(repo.failed))
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventSubscriptionActivated) {
		t.Fatalf("unexpected event_type attribute %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != first.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", attrs["aggregate_id"])
	}
	if attrs["event_id"] == "" {
		t.Fatal("expected event_id attribute from envelope")
	}
}

func TestProcessBatchMarksFailuresAndKeepsGoing(t *testing.T) {
	event := outboxEvent(t, 0)
	repo := &stubRepo{events: []models.OutboxEvent{event}}
	pub := &stubPublisher{err: errors.New("topic unavailable")}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("expected failure mark for %s, got %v", event.ID, repo.failed)
	}
	if len(repo.published) != 0 {
		t.Fatalf("expected no published marks, got %v", repo.published)
	}
}

func TestProcessBatchEmptyIsQuiet(t *testing.T) {
	repo := &stubRepo{}
	service := newTestService(t, repo, &stubPublisher{})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("expected no work for empty outbox")
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.PubSub.BillingTopic = "domain-events"
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     testPublisherLogger(),
		DB:         stubDB{},
		PubSub:     stubPubSub{},
		Repository: &stubRepo{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if service.batchSize != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", service.batchSize)
	}
	if service.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", service.maxAttempts)
	}
	if service.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", service.pollInterval)
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	got := nextBackoff(base, base, maxBackoff)
	if got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	got = nextBackoff(8*time.Second, base, maxBackoff)
	if got != maxBackoff {
		t.Fatalf("expected cap at %s, got %s", maxBackoff, got)
	}
}
