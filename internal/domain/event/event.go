// Package event holds the canonical webhook event record and the rules that
// turn raw GitHub deliveries into it.
package event

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Action string

const (
	ActionPush        Action = "push"
	ActionPullRequest Action = "pull_request"
	ActionMerge       Action = "merge"
)

// HasFromBranch reports whether records of this action carry a source branch.
func (a Action) HasFromBranch() bool {
	return a == ActionPullRequest || a == ActionMerge
}

// CanonicalEvent is an immutable, storage-ready webhook occurrence.
type CanonicalEvent struct {
	RequestID  string
	Author     string
	Action     Action
	FromBranch string
	ToBranch   string
	// Timestamp comes from the payload (commit, PR creation or merge time),
	// so store order follows real-world order rather than arrival order.
	Timestamp time.Time
}

// Stores keep timestamps as Unix nanoseconds, which bounds the instants a
// record can carry.
var (
	MinTimestamp = time.Unix(0, math.MinInt64).UTC()
	MaxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// TimestampInRange reports whether ts survives a Unix nanosecond round trip.
func TimestampInRange(ts time.Time) bool {
	return !ts.Before(MinTimestamp) && !ts.After(MaxTimestamp)
}

func Validate(ev CanonicalEvent) error {
	if strings.TrimSpace(ev.RequestID) == "" {
		return fmt.Errorf("%w: request_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(string(ev.Action)) == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.ToBranch) == "" {
		return fmt.Errorf("%w: to_branch is required", ErrInvalidEvent)
	}
	if ev.Action.HasFromBranch() && strings.TrimSpace(ev.FromBranch) == "" {
		return fmt.Errorf("%w: from_branch is required for %s", ErrInvalidEvent, ev.Action)
	}
	if !ev.Action.HasFromBranch() && ev.FromBranch != "" {
		return fmt.Errorf("%w: from_branch must be empty for %s", ErrInvalidEvent, ev.Action)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if !TimestampInRange(ev.Timestamp) {
		return fmt.Errorf("%w: timestamp %s outside %s..%s", ErrInvalidEvent,
			ev.Timestamp.UTC().Format(time.RFC3339), MinTimestamp.Format(time.RFC3339), MaxTimestamp.Format(time.RFC3339))
	}
	return nil
}
