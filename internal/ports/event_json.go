package ports

import (
	"encoding/json"
	"fmt"
	"time"

	"hookfeed/internal/domain/event"
)

type storedEventJSON struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	Author     string `json:"author"`
	Action     string `json:"action"`
	FromBranch string `json:"from_branch,omitempty"`
	ToBranch   string `json:"to_branch"`
	Timestamp  string `json:"timestamp"`
}

// MarshalJSON renders the wire shape shared by the HTTP API and published
// messages. from_branch is omitted for push records.
func (s StoredEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(storedEventJSON{
		ID:         s.ID,
		RequestID:  s.Event.RequestID,
		Author:     s.Event.Author,
		Action:     string(s.Event.Action),
		FromBranch: s.Event.FromBranch,
		ToBranch:   s.Event.ToBranch,
		Timestamp:  s.Event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (s *StoredEvent) UnmarshalJSON(data []byte) error {
	var raw storedEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw.Timestamp, err)
	}
	*s = StoredEvent{
		ID: raw.ID,
		Event: event.CanonicalEvent{
			RequestID:  raw.RequestID,
			Author:     raw.Author,
			Action:     event.Action(raw.Action),
			FromBranch: raw.FromBranch,
			ToBranch:   raw.ToBranch,
			Timestamp:  ts.UTC(),
		},
	}
	return nil
}
