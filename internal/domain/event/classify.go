package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
)

// Rule pairs a GitHub event type with a payload-level guard and a builder.
// Several rules may share an event type; they are tried in declaration order.
type Rule struct {
	EventType string
	Name      string
	apply     func(payload any, now time.Time) (CanonicalEvent, bool)
}

// Match is the outcome of a rule that produced a record.
type Match struct {
	Rule  string
	Event CanonicalEvent
}

func newRule[T any](eventType string, name string, guard func(T) bool, build func(T, time.Time) CanonicalEvent) Rule {
	return Rule{
		EventType: eventType,
		Name:      name,
		apply: func(payload any, now time.Time) (CanonicalEvent, bool) {
			typed, ok := payload.(T)
			if !ok || !guard(typed) {
				return CanonicalEvent{}, false
			}
			return build(typed, now), true
		},
	}
}

var rules = []Rule{
	newRule("push", "push", isActionablePush, buildPush),
	newRule("pull_request", "pull_request_opened", isOpenedPullRequest, buildPullRequest),
	newRule("pull_request", "pull_request_merged", isMergedPullRequest, buildMerge),
}

// Rules returns the classification table in evaluation order.
func Rules() []Rule {
	return slices.Clone(rules)
}

// SupportedEventTypes lists the distinct event types that have at least one rule.
func SupportedEventTypes() []string {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if !slices.Contains(out, rule.EventType) {
			out = append(out, rule.EventType)
		}
	}
	return out
}

// ValidatePayload checks that a webhook body is a JSON object.
func ValidatePayload(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}
	return nil
}

// Classify maps one delivery to zero or one canonical events. It performs no
// I/O; now stands in for the wall clock wherever the payload lacks a value.
// A false result with a nil error means the delivery is not actionable.
func Classify(eventType string, payload []byte, now time.Time) (Match, bool, error) {
	if err := ValidatePayload(payload); err != nil {
		return Match{}, false, err
	}

	eventType = strings.TrimSpace(eventType)
	candidates := make([]Rule, 0, 2)
	for _, rule := range rules {
		if rule.EventType == eventType {
			candidates = append(candidates, rule)
		}
	}
	if len(candidates) == 0 {
		return Match{}, false, nil
	}

	decoded, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return Match{}, false, fmt.Errorf("%w: decode %s payload: %w", ErrMalformedPayload, eventType, err)
	}

	for _, rule := range candidates {
		if ev, ok := rule.apply(decoded, now); ok {
			if !TimestampInRange(ev.Timestamp) {
				return Match{}, false, fmt.Errorf("%w: %s timestamp %s out of range", ErrMalformedPayload, rule.Name, ev.Timestamp.Format(time.RFC3339))
			}
			return Match{Rule: rule.Name, Event: ev}, true, nil
		}
	}
	return Match{}, false, nil
}
