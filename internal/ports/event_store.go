package ports

import (
	"context"
	"errors"
	"net"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
)

var (
	ErrConnectionFailed = errors.New("event store connection failed")
	ErrStoreTimeout     = errors.New("event store timeout")
)

// StoredEvent is a canonical event plus the identity the store assigned to it.
type StoredEvent struct {
	ID    string
	Event event.CanonicalEvent
}

// EventStore is append-only: records are never updated once written.
type EventStore interface {
	// Insert appends ev without checking request_id uniqueness.
	Insert(ctx context.Context, ev event.CanonicalEvent) (StoredEvent, error)
	// InsertUnique atomically claims ev.RequestID and appends ev. It reports
	// false, writing nothing, when the request_id was already claimed.
	InsertUnique(ctx context.Context, ev event.CanonicalEvent) (StoredEvent, bool, error)
	// QueryRecent returns at most limit events, newest timestamp first; equal
	// timestamps are ordered by insertion, latest first.
	QueryRecent(ctx context.Context, limit int) ([]StoredEvent, error)
	Ping(ctx context.Context) error
}

// SchemaMigrator is implemented by stores that own a schema.
type SchemaMigrator interface {
	Migrate(ctx context.Context) error
}

// EventPublisher fans stored events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, stored StoredEvent) error
}

// StoreFailure tags a backend error with its store error kind.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errs.Mark(err, ErrStoreTimeout)
	}
	if errors.Is(err, event.ErrInvalidEvent) || errors.Is(err, context.Canceled) {
		return err
	}
	return errs.Mark(err, ErrConnectionFailed)
}

// IsRetryable reports whether the caller may retry the same operation later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrConnectionFailed)
}
