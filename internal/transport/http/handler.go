package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatepass/internal/intake"
	"gatepass/pkg/platform/httputil"
)

// EventHandler processes one inbound event.
type EventHandler interface {
	Handle(ctx context.Context, ev intake.Event) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler exposes the intake engine over HTTP.
type Handler struct {
	events   EventHandler
	validate *validator.Validate
	logger   *slog.Logger
	checks   []HealthCheck
}

func NewHandler(events EventHandler, logger *slog.Logger, checks ...HealthCheck) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{events: events, validate: v, logger: logger, checks: checks}
}

// NewRouter mounts the event, health and metrics endpoints. guards wrap the
// event route only; health and metrics stay open for probes.
func NewRouter(h *Handler, guards ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Use(guards...)
		r.Post("/events", h.HandleEvent)
	})
	return r
}

// HandleEvent handles POST /v1/events.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	req, err := httputil.Decode[EventRequest](r, h.validate)
	if err != nil {
		h.logger.WarnContext(ctx, "event rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if err := h.events.Handle(ctx, req.ToEvent()); err != nil {
		h.logger.ErrorContext(ctx, "event handling failed",
			"request_id", requestID,
			"requester_id", req.RequesterID,
			"kind", req.Kind,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for _, c := range h.checks {
		if err := c.Check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[c.Name] = err.Error()
			continue
		}
		body[c.Name] = "ok"
	}
	httputil.WriteJSON(w, status, body)
}
