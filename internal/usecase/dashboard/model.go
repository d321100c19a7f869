// Package dashboard is the terminal view of the recent-events feed.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/ports"
)

const (
	DefaultRefreshInterval = 15 * time.Second
	DefaultLimit           = 50
)

type Options struct {
	// Source is shown in the header, usually the events URL.
	Source          string
	RefreshInterval time.Duration
	Limit           int
	Location        *time.Location
}

type model struct {
	ctx             context.Context
	source          EventSource
	sourceLabel     string
	refreshInterval time.Duration
	limit           int
	location        *time.Location
	now             func() time.Time

	events      []ports.StoredEvent
	loaded      bool
	loading     bool
	paused      bool
	lastErr     error
	lastUpdated time.Time
	status      string
}

type eventsLoadedMsg struct {
	items []ports.StoredEvent
	err   error
}

type tickMsg struct{}

func NewModel(ctx context.Context, source EventSource, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	limit := options.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}

	return &model{
		ctx:             logging.WithAttrs(ctx, slog.String("component", "usecase.dashboard")),
		source:          source,
		sourceLabel:     strings.TrimSpace(options.Source),
		refreshInterval: interval,
		limit:           limit,
		location:        loc,
		now:             time.Now,
		loading:         true,
		status:          "Loading GitHub events...",
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.loadEventsCmd(), m.tickCmd())
}

func (m *model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		if m.paused || m.loading {
			return m, m.tickCmd()
		}
		m.loading = true
		return m, tea.Batch(m.loadEventsCmd(), m.tickCmd())
	case eventsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			// Keep the last good list on screen; View flags it as stale.
			m.lastErr = msg.err
			m.status = "refresh failed"
			logging.Warn(m.ctx, "fetch events failed", slog.String("err", msg.err.Error()))
			return m, nil
		}
		m.events = msg.items
		m.loaded = true
		m.lastErr = nil
		m.lastUpdated = m.now()
		m.status = fmt.Sprintf("%d events", len(m.events))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			if m.loading {
				return m, nil
			}
			m.loading = true
			m.status = "refreshing"
			return m, m.loadEventsCmd()
		case "p":
			m.paused = !m.paused
			if m.paused {
				m.status = "polling paused"
			} else {
				m.status = "polling resumed"
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("160"))

	polling := "live"
	if m.paused {
		polling = "paused"
	}

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("GitHub Repository Activity"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"source=%s refresh=%s limit=%d polling=%s",
		firstNonEmpty(m.sourceLabel, "-"),
		m.refreshInterval,
		m.limit,
		polling,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Events"))
	builder.WriteString("\n")
	switch {
	case !m.loaded && m.lastErr != nil:
		builder.WriteString(errorStyle.Render("Error loading events: " + m.lastErr.Error()))
		builder.WriteString("\n\n")
	case !m.loaded:
		builder.WriteString(dimStyle.Render("Loading GitHub events..."))
		builder.WriteString("\n\n")
	case len(m.events) == 0:
		builder.WriteString("No events yet\n")
		builder.WriteString(dimStyle.Render("Webhook events will appear here when repository activities occur."))
		builder.WriteString("\n\n")
	default:
		for _, item := range m.events {
			builder.WriteString(fmt.Sprintf("- [%s] %s\n", item.Event.Action, Describe(item, m.location)))
		}
		builder.WriteString("\n")
	}

	if m.loaded && m.lastErr != nil {
		builder.WriteString(errorStyle.Render("Stale: last refresh failed: " + m.lastErr.Error()))
		builder.WriteString("\n\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n")
	if !m.lastUpdated.IsZero() {
		builder.WriteString("- Last updated: " + m.lastUpdated.In(m.location).Format("3:04:05 PM"))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(dimStyle.Render("Keys: g refresh  p pause/resume  q quit"))
	return builder.String()
}

func (m *model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *model) loadEventsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.source.RecentEvents(m.ctx, m.limit)
		return eventsLoadedMsg{items: items, err: err}
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
