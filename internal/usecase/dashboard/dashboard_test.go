package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/ports"
)

var sampleTime = time.Date(2021, 4, 1, 21, 30, 0, 0, time.UTC)

func sampleEvents() []ports.StoredEvent {
	return []ports.StoredEvent{
		{ID: "3", Event: event.CanonicalEvent{RequestID: "merge_1", Author: "Travis", Action: event.ActionMerge, FromBranch: "dev", ToBranch: "master", Timestamp: sampleTime}},
		{ID: "2", Event: event.CanonicalEvent{RequestID: "pr_1", Author: "Travis", Action: event.ActionPullRequest, FromBranch: "staging", ToBranch: "master", Timestamp: sampleTime}},
		{ID: "1", Event: event.CanonicalEvent{RequestID: "abc", Author: "Travis", Action: event.ActionPush, ToBranch: "staging", Timestamp: sampleTime}},
	}
}

func TestDescribe(t *testing.T) {
	events := sampleEvents()
	testCases := []struct {
		name string
		in   ports.StoredEvent
		want string
	}{
		{name: "push", in: events[2], want: "Travis pushed to staging on 1 April 2021 at 9:30 PM UTC"},
		{name: "pull request", in: events[1], want: "Travis submitted a pull request from staging to master on 1 April 2021 at 9:30 PM UTC"},
		{name: "merge", in: events[0], want: "Travis merged branch dev to master on 1 April 2021 at 9:30 PM UTC"},
		{
			name: "other action",
			in:   ports.StoredEvent{Event: event.CanonicalEvent{Author: "Travis", Action: "release", Timestamp: sampleTime}},
			want: "Travis performed release on 1 April 2021 at 9:30 PM UTC",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := Describe(testCase.in, time.UTC); got != testCase.want {
				t.Fatalf("Describe() = %q, want %q", got, testCase.want)
			}
		})
	}
}

type stubSource struct {
	items []ports.StoredEvent
	err   error
	calls int
	limit int
}

func (s *stubSource) RecentEvents(_ context.Context, limit int) ([]ports.StoredEvent, error) {
	s.calls++
	s.limit = limit
	return s.items, s.err
}

func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func newTestModel(source EventSource) *model {
	return NewModel(context.Background(), source, Options{Source: "http://localhost:8080/api/events", Location: time.UTC}).(*model)
}

func TestModelRendersLoadedEvents(t *testing.T) {
	m := newTestModel(&stubSource{})

	m.Update(eventsLoadedMsg{items: sampleEvents()})
	view := m.View()
	if !strings.Contains(view, "Travis merged branch dev to master on 1 April 2021 at 9:30 PM UTC") {
		t.Fatalf("view missing merge line:\n%s", view)
	}
	if strings.Index(view, "merged branch") > strings.Index(view, "pushed to") {
		t.Fatalf("events not rendered in feed order:\n%s", view)
	}
	if strings.Contains(view, "No events yet") {
		t.Fatalf("view shows empty state with events:\n%s", view)
	}
}

func TestModelDistinguishesEmptyFromError(t *testing.T) {
	t.Run("empty feed", func(t *testing.T) {
		m := newTestModel(&stubSource{})
		m.Update(eventsLoadedMsg{items: []ports.StoredEvent{}})
		view := m.View()
		if !strings.Contains(view, "No events yet") || strings.Contains(view, "Error loading events") {
			t.Fatalf("empty view:\n%s", view)
		}
	})

	t.Run("first load fails", func(t *testing.T) {
		m := newTestModel(&stubSource{})
		m.Update(eventsLoadedMsg{err: errors.New("HTTP error! status: 500")})
		view := m.View()
		if !strings.Contains(view, "Error loading events: HTTP error! status: 500") || strings.Contains(view, "No events yet") {
			t.Fatalf("error view:\n%s", view)
		}
	})

	t.Run("refresh fails after success keeps stale list", func(t *testing.T) {
		m := newTestModel(&stubSource{})
		m.Update(eventsLoadedMsg{items: sampleEvents()})
		m.Update(eventsLoadedMsg{err: errors.New("connection refused")})
		view := m.View()
		if !strings.Contains(view, "pushed to staging") {
			t.Fatalf("stale list dropped:\n%s", view)
		}
		if !strings.Contains(view, "Stale: last refresh failed: connection refused") {
			t.Fatalf("stale marker missing:\n%s", view)
		}
	})
}

func TestModelPauseSkipsPolling(t *testing.T) {
	source := &stubSource{}
	m := newTestModel(source)
	m.Update(eventsLoadedMsg{items: []ports.StoredEvent{}})

	m.Update(keyMsg("p"))
	if !m.paused {
		t.Fatal("p did not pause polling")
	}
	if _, cmd := m.Update(tickMsg{}); cmd == nil {
		t.Fatal("paused tick did not re-arm the timer")
	}
	if m.loading {
		t.Fatal("paused tick started a load")
	}
	if !strings.Contains(m.View(), "polling=paused") {
		t.Fatalf("view does not show paused state:\n%s", m.View())
	}

	m.Update(keyMsg("p"))
	if m.paused {
		t.Fatal("second p did not resume polling")
	}
	m.Update(tickMsg{})
	if !m.loading {
		t.Fatal("tick after resume did not start a load")
	}
}

func TestModelManualRefresh(t *testing.T) {
	source := &stubSource{items: sampleEvents()}
	m := newTestModel(source)
	m.Update(eventsLoadedMsg{items: []ports.StoredEvent{}})

	_, cmd := m.Update(keyMsg("g"))
	if cmd == nil {
		t.Fatal("g returned no command")
	}
	msg := cmd()
	loaded, ok := msg.(eventsLoadedMsg)
	if !ok {
		t.Fatalf("command produced %T, want eventsLoadedMsg", msg)
	}
	if source.calls != 1 || source.limit != DefaultLimit {
		t.Fatalf("source calls=%d limit=%d, want 1 and %d", source.calls, source.limit, DefaultLimit)
	}
	m.Update(loaded)
	if len(m.events) != 3 {
		t.Fatalf("events = %d, want 3", len(m.events))
	}
}

func TestModelQuit(t *testing.T) {
	m := newTestModel(&stubSource{})
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}

func TestClientRecentEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("limit") == "13" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch events"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"count":1,"events":[{"id":"1","request_id":"abc","author":"Travis","action":"push","to_branch":"staging","timestamp":"2021-04-01T21:30:00Z"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.EventsURL() != server.URL+"/api/events" {
		t.Fatalf("EventsURL() = %q", client.EventsURL())
	}

	items, err := client.RecentEvents(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(items) != 1 || items[0].Event.Author != "Travis" || !items[0].Event.Timestamp.Equal(sampleTime) {
		t.Fatalf("RecentEvents() = %+v", items)
	}

	_, err = client.RecentEvents(context.Background(), 13)
	if err == nil || !strings.Contains(err.Error(), "status: 500: Failed to fetch events") {
		t.Fatalf("RecentEvents() error = %v, want status 500", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url", time.Second); err == nil {
		t.Fatal("NewClient() error = nil")
	}
}
