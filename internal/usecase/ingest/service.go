// Package ingest turns GitHub deliveries into stored events and serves the
// recent-events feed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
	"hookfeed/internal/metrics"
	"hookfeed/internal/ports"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultQueryLimit   = 50
	DefaultMaxLimit     = 500
)

type Options struct {
	// Dedupe drops deliveries whose request_id was already stored.
	Dedupe       bool
	StoreTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
}

type Service struct {
	store     ports.EventStore
	publisher ports.EventPublisher
	opts      Options
	now       func() time.Time
}

// NewService wires the ingestion and query use cases. publisher may be nil.
func NewService(store ports.EventStore, publisher ports.EventPublisher, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultQueryLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = max(DefaultMaxLimit, opts.DefaultLimit)
	}
	return &Service{
		store:     store,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

type IngestInput struct {
	EventType  string
	DeliveryID string
	Payload    []byte
}

type IngestResult struct {
	Stored    bool
	Duplicate bool
	Rule      string
	Event     *ports.StoredEvent
}

// Ingest validates, classifies and stores one delivery. Unsupported event
// types and deliveries no rule accepts return a zero result and no error.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (IngestResult, error) {
	if ctx == nil {
		return IngestResult{}, errors.New("context is required")
	}
	if s.store == nil {
		return IngestResult{}, errors.New("event store is required")
	}

	eventType := strings.TrimSpace(input.EventType)
	metricType := metrics.EventTypeLabel(eventType, event.SupportedEventTypes())
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "usecase.ingest"),
		slog.String("event_type", eventType),
		slog.String("delivery_id", input.DeliveryID),
	)

	if err := event.ValidatePayload(input.Payload); err != nil {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeMalformed).Inc()
		logging.Warn(ctx, "rejected malformed webhook payload", slog.Any("err", errs.Loggable(err)))
		return IngestResult{}, err
	}
	if eventType == "" {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeMissingEvent).Inc()
		return IngestResult{}, event.ErrMissingEventType
	}

	match, ok, err := event.Classify(eventType, input.Payload, s.now())
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeMalformed).Inc()
		logging.Warn(ctx, "rejected malformed webhook payload", slog.Any("err", errs.Loggable(err)))
		return IngestResult{}, err
	}
	if !ok {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeIgnored).Inc()
		logging.Info(ctx, "webhook not actionable")
		return IngestResult{}, nil
	}

	ctx = logging.WithAttrs(ctx, slog.String("rule", match.Rule), slog.String("request_id", match.Event.RequestID))

	stored, inserted, err := s.insert(ctx, match.Event)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeStoreError).Inc()
		logging.Error(ctx, "store webhook event failed", slog.Any("err", errs.Loggable(err)))
		return IngestResult{}, err
	}
	if !inserted {
		metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeDuplicate).Inc()
		logging.Info(ctx, "duplicate webhook skipped")
		return IngestResult{Duplicate: true, Rule: match.Rule}, nil
	}

	metrics.WebhooksTotal.WithLabelValues(metricType, metrics.OutcomeStored).Inc()
	logging.Info(ctx, "webhook event stored", slog.String("event_id", stored.ID), slog.String("action", string(stored.Event.Action)))

	s.publish(ctx, stored)
	return IngestResult{Stored: true, Rule: match.Rule, Event: &stored}, nil
}

func (s *Service) insert(ctx context.Context, ev event.CanonicalEvent) (ports.StoredEvent, bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	op := "insert"
	if s.opts.Dedupe {
		op = "insert_unique"
	}
	started := time.Now()
	defer func() {
		metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}()

	var (
		stored   ports.StoredEvent
		inserted = true
		err      error
	)
	if s.opts.Dedupe {
		stored, inserted, err = s.store.InsertUnique(storeCtx, ev)
	} else {
		stored, err = s.store.Insert(storeCtx, ev)
	}
	if err != nil {
		err = ports.StoreFailure(err)
		metrics.StoreErrors.WithLabelValues(op, metrics.StoreErrorKind(err)).Inc()
		return ports.StoredEvent{}, false, errs.Wrap(err, "persist webhook event")
	}
	return stored, inserted, nil
}

func (s *Service) publish(ctx context.Context, stored ports.StoredEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, stored); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		logging.Warn(ctx, "publish stored event failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

// Limit resolves a requested page size: non-positive means the default and
// anything above the maximum is clamped.
func (s *Service) Limit(requested int) int {
	if requested <= 0 {
		return s.opts.DefaultLimit
	}
	return min(requested, s.opts.MaxLimit)
}

// RecentEvents returns the newest stored events, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]ports.StoredEvent, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s.store == nil {
		return nil, errors.New("event store is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	started := time.Now()
	items, err := s.store.QueryRecent(storeCtx, s.Limit(limit))
	metrics.StoreDuration.WithLabelValues("query_recent").Observe(time.Since(started).Seconds())
	if err != nil {
		err = ports.StoreFailure(err)
		metrics.StoreErrors.WithLabelValues("query_recent", metrics.StoreErrorKind(err)).Inc()
		return nil, errs.Wrap(err, "query recent events")
	}

	metrics.QueryEventsReturned.Observe(float64(len(items)))
	return items, nil
}

// Health pings the store within the store timeout.
func (s *Service) Health(ctx context.Context) error {
	if s.store == nil {
		return errors.New("event store is required")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.store.Ping(storeCtx); err != nil {
		return fmt.Errorf("event store unreachable: %w", ports.StoreFailure(err))
	}
	return nil
}
