package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hookfeed/internal/ports"
)

// EventSource supplies the newest stored events, newest first.
type EventSource interface {
	RecentEvents(ctx context.Context, limit int) ([]ports.StoredEvent, error)
}

// Client reads the events feed over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ EventSource = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid events base url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}, nil
}

// EventsURL is the feed endpoint the client polls.
func (c *Client) EventsURL() string {
	return c.baseURL + "/api/events"
}

type eventsEnvelope struct {
	Success bool                `json:"success"`
	Events  []ports.StoredEvent `json:"events"`
	Error   string              `json:"error"`
}

func (c *Client) RecentEvents(ctx context.Context, limit int) ([]ports.StoredEvent, error) {
	target := c.EventsURL()
	if limit > 0 {
		target += "?limit=" + strconv.Itoa(limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read events response: %w", err)
	}

	var envelope eventsEnvelope
	decodeErr := json.Unmarshal(body, &envelope)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && envelope.Error != "" {
			return nil, fmt.Errorf("HTTP error! status: %d: %s", resp.StatusCode, envelope.Error)
		}
		return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode events response: %w", decodeErr)
	}
	if !envelope.Success {
		return nil, errors.New("failed to fetch events from API")
	}
	if envelope.Events == nil {
		envelope.Events = []ports.StoredEvent{}
	}
	return envelope.Events, nil
}
