package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the server's answer to one delivery.
type Result struct {
	Delivery Delivery
	Status   int
	Message  string
}

// OK reports a 2xx answer.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Sender posts deliveries the way GitHub does.
type Sender struct {
	target string
	client *http.Client
}

func NewSender(target string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		target: strings.TrimSpace(target),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Sender) Send(ctx context.Context, d Delivery) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target, bytes.NewReader(d.Payload))
	if err != nil {
		return Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "GitHub-Hookshot/hookfeed-simulate")
	req.Header.Set("X-GitHub-Event", d.EventType)
	req.Header.Set("X-GitHub-Delivery", d.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post %s delivery %s: %w", d.Kind, d.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response for delivery %s: %w", d.ID, err)
	}

	var ack struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &ack); err == nil {
		if ack.Message != "" {
			message = ack.Message
		} else if ack.Error != "" {
			message = ack.Error
		}
	}

	return Result{Delivery: d, Status: resp.StatusCode, Message: message}, nil
}

// SendAll posts deliveries in order, pausing interval between them. It stops
// at the first transport error; non-2xx answers are reported, not fatal.
func (s *Sender) SendAll(ctx context.Context, deliveries []Delivery, interval time.Duration, report func(Result)) error {
	for i, d := range deliveries {
		result, err := s.Send(ctx, d)
		if err != nil {
			return err
		}
		if report != nil {
			report(result)
		}

		if interval > 0 && i < len(deliveries)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil
}
