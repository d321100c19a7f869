package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v68/github"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hookfeed/internal/bootstrap/config"
	"hookfeed/internal/bootstrap/logging"
	"hookfeed/internal/domain/event"
	"hookfeed/internal/errs"
	"hookfeed/internal/ports"
	"hookfeed/internal/usecase/ingest"
)

// GitHub caps webhook payloads at 25 MB.
const maxWebhookBodyBytes = 25 << 20

const (
	msgWebhookStored    = "Webhook processed successfully"
	msgWebhookIgnored   = "Webhook received but not processed (unsupported event or action)"
	msgWebhookDuplicate = "Webhook already processed (duplicate request_id)"

	errMsgInvalidPayload  = "Invalid webhook payload"
	errMsgMissingEvent    = "Missing GitHub event header"
	errMsgPayloadTooLarge = "Payload too large"
	errMsgInternal        = "Internal server error"
	errMsgFetchEvents     = "Failed to fetch events"
	errMsgInvalidLimit    = "limit must be a positive integer"
)

var version = "dev"

type webhookResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Event   *ports.StoredEvent `json:"event,omitempty"`
}

type eventsResponse struct {
	Success bool                `json:"success"`
	Events  []ports.StoredEvent `json:"events"`
	Count   int                 `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type webhookInstructions struct {
	URL         string        `json:"url"`
	Method      string        `json:"method"`
	ContentType string        `json:"contentType"`
	Events      []string      `json:"events"`
	Rules       []ruleSummary `json:"rules"`
}

type ruleSummary struct {
	Event string `json:"event"`
	Name  string `json:"name"`
}

func ruleSummaries() []ruleSummary {
	table := event.Rules()
	out := make([]ruleSummary, 0, len(table))
	for _, rule := range table {
		out = append(out, ruleSummary{Event: rule.EventType, Name: rule.Name})
	}
	return out
}

type discoveryResponse struct {
	Message      string              `json:"message"`
	Instructions webhookInstructions `json:"instructions"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type webhookHandler struct {
	svc *ingest.Service
	cfg config.Config
	now func() time.Time
}

// newRouter mounts every HTTP endpoint on one chi router.
func newRouter(svc *ingest.Service, cfg config.Config) http.Handler {
	h := &webhookHandler{svc: svc, cfg: cfg, now: time.Now}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(recoverJSON)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.Get("/", h.index)
	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook", h.receiveWebhook)
		r.Get("/webhook", h.describeWebhook)
		r.Get("/events", h.listEvents)
	})
	return r
}

func (h *webhookHandler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: errMsgPayloadTooLarge})
			return
		}
		logging.Warn(ctx, "read webhook body failed", slog.Any("err", errs.Loggable(err)))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMsgInvalidPayload})
		return
	}

	result, err := h.svc.Ingest(ctx, ingest.IngestInput{
		EventType:  github.WebHookType(r),
		DeliveryID: github.DeliveryID(r),
		Payload:    body,
	})
	switch {
	case errors.Is(err, event.ErrMalformedPayload):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMsgInvalidPayload})
		return
	case errors.Is(err, event.ErrMissingEventType):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMsgMissingEvent})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errMsgInternal})
		return
	}

	switch {
	case result.Stored:
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: msgWebhookStored, Event: result.Event})
	case result.Duplicate:
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: msgWebhookDuplicate})
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: msgWebhookIgnored})
	}
}

func (h *webhookHandler) describeWebhook(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, discoveryResponse{
		Message: "GitHub Webhook Endpoint",
		Instructions: webhookInstructions{
			URL:         h.cfg.App.WebhookURL(),
			Method:      http.MethodPost,
			ContentType: "application/json",
			Events:      event.SupportedEventTypes(),
			Rules:       ruleSummaries(),
		},
	})
}

func (h *webhookHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMsgInvalidLimit})
			return
		}
		limit = parsed
	}

	items, err := h.svc.RecentEvents(r.Context(), limit)
	if err != nil {
		logging.Error(r.Context(), "fetch recent events failed", slog.Any("err", errs.Loggable(err)))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errMsgFetchEvents})
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Success: true, Events: items, Count: len(items)})
}

func (h *webhookHandler) health(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339)
	if err := h.svc.Health(r.Context()); err != nil {
		logging.Warn(r.Context(), "health check failed", slog.Any("err", errs.Loggable(err)))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error(), Timestamp: ts})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Store: "connected", Timestamp: ts})
}

func (h *webhookHandler) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "GitHub Webhook API",
		"version": version,
		"endpoints": map[string]string{
			"webhook": "/api/webhook (POST)",
			"events":  "/api/events (GET)",
			"health":  "/healthz (GET)",
			"metrics": "/metrics (GET)",
		},
		"webhook_setup": map[string]any{
			"url":          h.cfg.App.WebhookURL(),
			"content_type": "application/json",
			"events":       event.SupportedEventTypes(),
			"rules":        ruleSummaries(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestID propagates X-Request-ID or assigns a fresh UUID, and tags the
// request logger with it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := logging.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		logging.Info(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(started)),
		)
	})
}

// recoverJSON turns a handler panic into a 500 JSON error.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Error(r.Context(), "http handler panic",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errMsgInternal})
		}()
		next.ServeHTTP(w, r)
	})
}
