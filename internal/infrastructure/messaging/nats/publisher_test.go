package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/ports"
)

type recordedMsg struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []recordedMsg
	err     error
	drained bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, recordedMsg{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func sampleStored() ports.StoredEvent {
	return ports.StoredEvent{ID: "12", Event: event.CanonicalEvent{
		RequestID:  "1001",
		Author:     "carol",
		Action:     event.ActionMerge,
		FromBranch: "feature-x",
		ToBranch:   "main",
		Timestamp:  time.Date(2026, 1, 16, 8, 0, 0, 0, time.UTC),
	}}
}

func TestPublishUsesActionSubject(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "")

	if err := p.Publish(context.Background(), sampleStored()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(fc.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.msgs))
	}
	if fc.msgs[0].subject != "hookfeed.events.merge" {
		t.Fatalf("subject = %q, want hookfeed.events.merge", fc.msgs[0].subject)
	}

	var got ports.StoredEvent
	if err := json.Unmarshal(fc.msgs[0].data, &got); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got != sampleStored() {
		t.Fatalf("message = %+v, want %+v", got, sampleStored())
	}
}

func TestSubjectPrefixIsNormalized(t *testing.T) {
	p := newPublisher(&fakeConn{}, " team.hooks. ")
	if got := p.Subject("push"); got != "team.hooks.push" {
		t.Fatalf("Subject() = %q, want team.hooks.push", got)
	}
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "")
	if err := p.Publish(context.Background(), sampleStored()); err == nil {
		t.Fatal("Publish() error = nil, want connection error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc := &fakeConn{}
	if err := newPublisher(fc, "").Publish(ctx, sampleStored()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish() error = %v, want context.Canceled", err)
	}
	if len(fc.msgs) != 0 {
		t.Fatal("canceled publish reached the connection")
	}
}

func TestCloseDrains(t *testing.T) {
	fc := &fakeConn{}
	if err := newPublisher(fc, "").Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fc.drained {
		t.Fatal("Close() did not drain the connection")
	}
}
