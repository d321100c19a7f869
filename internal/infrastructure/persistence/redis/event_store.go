// Package redis stores webhook events in Redis: one hash per event plus a
// sorted set that indexes them by timestamp.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
	"hookfeed/internal/ports"
)

const DefaultKeyPrefix = "hookfeed"

// insertScript appends one event atomically. With ARGV[1] == "1" it first
// claims KEYS[3] and returns nil when the claim already exists.
//
// Sorted set members are zero-padded sequence numbers, so events sharing a
// score come back from ZREVRANGE latest insert first.
var insertScript = goredis.NewScript(`
local unique = ARGV[1] == '1'
if unique then
	if redis.call('SETNX', KEYS[3], ARGV[4]) == 0 then
		return false
	end
end

local seq = tostring(redis.call('INCR', KEYS[1]))
local member = string.rep('0', 20 - #seq) .. seq

redis.call('HSET', ARGV[2] .. member,
	'request_id', ARGV[5],
	'author', ARGV[6],
	'action', ARGV[7],
	'from_branch', ARGV[8],
	'to_branch', ARGV[9],
	'occurred_at', ARGV[10],
	'ingested_at', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[3], member)
return member
`)

type EventStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

var _ ports.EventStore = (*EventStore)(nil)

func NewEventStore(client *goredis.Client, prefix string) *EventStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &EventStore{client: client, prefix: prefix, now: time.Now}
}

// Open parses a redis:// URL and verifies the server answers before returning.
func Open(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(ports.StoreFailure(err), "redis connection failed")
	}
	return client, nil
}

func (s *EventStore) Insert(ctx context.Context, ev event.CanonicalEvent) (ports.StoredEvent, error) {
	stored, _, err := s.insert(ctx, ev, false)
	return stored, err
}

func (s *EventStore) InsertUnique(ctx context.Context, ev event.CanonicalEvent) (ports.StoredEvent, bool, error) {
	return s.insert(ctx, ev, true)
}

func (s *EventStore) insert(ctx context.Context, ev event.CanonicalEvent, unique bool) (ports.StoredEvent, bool, error) {
	if err := event.Validate(ev); err != nil {
		return ports.StoredEvent{}, false, err
	}

	uniqueFlag := "0"
	if unique {
		uniqueFlag = "1"
	}
	ts := ev.Timestamp.UTC()

	member, err := insertScript.Run(ctx, s.client,
		[]string{s.seqKey(), s.indexKey(), s.claimKey(ev.RequestID)},
		uniqueFlag,
		s.eventKeyPrefix(),
		ts.UnixMilli(),
		s.now().UTC().Format(time.RFC3339Nano),
		ev.RequestID,
		ev.Author,
		string(ev.Action),
		ev.FromBranch,
		ev.ToBranch,
		ts.UnixNano(),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return ports.StoredEvent{}, false, nil
	}
	if err != nil {
		return ports.StoredEvent{}, false, errs.Wrap(ports.StoreFailure(err), "insert webhook event")
	}

	id, err := memberID(member)
	if err != nil {
		return ports.StoredEvent{}, false, err
	}
	return ports.StoredEvent{ID: id, Event: ev}, true, nil
}

func (s *EventStore) QueryRecent(ctx context.Context, limit int) ([]ports.StoredEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	members, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errs.Wrap(ports.StoreFailure(err), "query recent webhook events")
	}
	if len(members) == 0 {
		return []ports.StoredEvent{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, 0, len(members))
	for _, member := range members {
		cmds = append(cmds, pipe.HGetAll(ctx, s.eventKeyPrefix()+member))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errs.Wrap(ports.StoreFailure(err), "load webhook events")
	}

	items := make([]ports.StoredEvent, 0, len(members))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Indexed member without a hash; written by something other than insertScript.
			continue
		}
		stored, err := decodeEvent(members[i], fields)
		if err != nil {
			return nil, err
		}
		items = append(items, stored)
	}
	return items, nil
}

func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errs.Wrap(ports.StoreFailure(err), "ping redis")
	}
	return nil
}

func (s *EventStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *EventStore) seqKey() string         { return s.prefix + ":events:seq" }
func (s *EventStore) indexKey() string       { return s.prefix + ":events:recent" }
func (s *EventStore) eventKeyPrefix() string { return s.prefix + ":event:" }
func (s *EventStore) claimKey(requestID string) string {
	return s.prefix + ":request:" + requestID
}

func memberID(member string) (string, error) {
	seq, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse event member %q: %w", member, err)
	}
	return strconv.FormatUint(seq, 10), nil
}

func decodeEvent(member string, fields map[string]string) (ports.StoredEvent, error) {
	id, err := memberID(member)
	if err != nil {
		return ports.StoredEvent{}, err
	}
	nanos, err := strconv.ParseInt(fields["occurred_at"], 10, 64)
	if err != nil {
		return ports.StoredEvent{}, fmt.Errorf("parse occurred_at of event %s: %w", id, err)
	}
	return ports.StoredEvent{
		ID: id,
		Event: event.CanonicalEvent{
			RequestID:  fields["request_id"],
			Author:     fields["author"],
			Action:     event.Action(fields["action"]),
			FromBranch: fields["from_branch"],
			ToBranch:   fields["to_branch"],
			Timestamp:  time.Unix(0, nanos).UTC(),
		},
	}, nil
}
