// Package nats fans stored webhook events out over NATS core subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/ports"
)

const DefaultSubjectPrefix = "hookfeed.events"

// Config holds NATS publisher configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// SubjectPrefix is joined with the event action, e.g. "hookfeed.events.push".
	SubjectPrefix string

	// Name is the client name for connection identification.
	Name string

	// Timeout is the connection timeout.
	Timeout time.Duration
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements ports.EventPublisher on a NATS connection.
type Publisher struct {
	conn   conn
	prefix string
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Connect dials NATS with infinite reconnects so a broker restart never
// blocks ingestion.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "messaging.nats"))

	name := cfg.Name
	if name == "" {
		name = "hookfeed"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.String("err", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return newPublisher(nc, cfg.SubjectPrefix), nil
}

func newPublisher(c conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: c, prefix: prefix}
}

// Subject returns the subject a record with the given action is published on.
func (p *Publisher) Subject(action string) string {
	return p.prefix + "." + action
}

func (p *Publisher) Publish(ctx context.Context, stored ports.StoredEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.conn.Publish(p.Subject(string(stored.Event.Action)), data); err != nil {
		return fmt.Errorf("publish event %s: %w", stored.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
