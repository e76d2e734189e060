package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gatepass/internal/access"
	ledger "gatepass/internal/ledger/models"
	"gatepass/internal/notify"
	notifyModels "gatepass/internal/notify/models"
	"gatepass/internal/platform/metrics"
	session "gatepass/internal/session/models"
	sessionStore "gatepass/internal/session/store"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// SessionStore keeps one session per requester.
type SessionStore interface {
	Get(ctx context.Context, requester id.RequesterID) (session.Session, error)
	Put(ctx context.Context, s session.Session) error
	Clear(ctx context.Context, requester id.RequesterID) error
}

// Dispatcher delivers outbound messages and applies acknowledgments.
type Dispatcher interface {
	Deliver(ctx context.Context, msgs []notifyModels.Message)
	Announce(ctx context.Context, req *ledger.Request)
	Acknowledge(ctx context.Context, key string, presser id.RequesterID, ref notifyModels.MessageRef) notify.Outcome
}

// Engine runs inbound events through the access gate, the session store
// and the machine. Events of one requester are handled one at a time;
// different requesters never wait on each other. Outbound messages are
// sent after the requester's lock is released.
type Engine struct {
	machine    *Machine
	sessions   SessionStore
	locker     *sessionStore.KeyedLocker
	gate       access.Gate
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(machine *Machine, sessions SessionStore, gate access.Gate, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		machine:    machine,
		sessions:   sessions,
		locker:     sessionStore.NewKeyedLocker(),
		gate:       gate,
		dispatcher: dispatcher,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("gatepass/intake"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine-level outcomes, reported in metrics next to the machine's.
const (
	outcomeDenied      Outcome = "denied"
	outcomeUnavailable Outcome = "unavailable"
	outcomeFailed      Outcome = "failed"
)

// handled is the effect of one event that is applied after the lock is
// released.
type handled struct {
	outcome Outcome
	replies []notifyModels.Message
	request *ledger.Request
}

// Handle processes one inbound event. Acknowledgment keys bypass the
// conversation; the dispatcher ignores presses that did not come from the
// security channel or a configured operator. The returned error is non-nil only for
// malformed events and session storage failures; the requester has already
// been told to retry in the latter case.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	start := e.now()
	defer e.metrics.ObserveEvent(start)

	ctx, span := e.tracer.Start(ctx, "intake.handle", trace.WithAttributes(
		attribute.Int64("requester_id", int64(ev.RequesterID)),
		attribute.String("kind", string(ev.Kind)),
	))
	defer span.End()

	if ev.RequesterID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "requester id is required")
	}
	if _, err := ParseEventKind(string(ev.Kind)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid event kind")
	}

	if ev.Kind == KindButton && notify.IsKey(ev.Payload) {
		outcome := e.dispatcher.Acknowledge(ctx, ev.Payload, ev.RequesterID, ev.MessageRef)
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		e.metrics.IncEvent(string(ev.Kind), "acknowledgment")
		return nil
	}

	h, err := e.step(ctx, ev)
	span.SetAttributes(attribute.String("outcome", string(h.outcome)))
	e.metrics.IncEvent(string(ev.Kind), string(h.outcome))

	e.dispatcher.Deliver(ctx, h.replies)
	if h.request != nil {
		e.dispatcher.Announce(ctx, h.request)
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (e *Engine) step(ctx context.Context, ev Event) (handled, error) {
	unlock := e.locker.Lock(ev.RequesterID)
	defer unlock()

	if ev.command() == CommandStart {
		if err := e.sessions.Clear(ctx, ev.RequesterID); err != nil {
			return e.storageFailure(ctx, ev, err)
		}
		return e.enter(ctx, ev)
	}

	s, err := e.sessions.Get(ctx, ev.RequesterID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return e.enter(ctx, ev)
	}
	if err != nil {
		return e.storageFailure(ctx, ev, err)
	}
	return e.advance(ctx, s, ev)
}

// enter starts a conversation for a requester without a session. The gate
// is consulted on every entry; a gate error counts as a denial.
func (e *Engine) enter(ctx context.Context, ev Event) (handled, error) {
	allowed, err := e.gate.Allowed(ctx, ev.RequesterID)
	if err != nil {
		e.logger.WarnContext(ctx, "access check failed",
			"requester_id", ev.RequesterID,
			"error", err,
		)
	}
	if err != nil || !allowed {
		e.metrics.IncAccessDenied()
		e.logger.InfoContext(ctx, "access denied", "requester_id", ev.RequesterID)
		return handled{
			outcome: outcomeDenied,
			replies: []notifyModels.Message{reply(ev.RequesterID, textDenied)},
		}, nil
	}

	s := session.New(ev.RequesterID, ev.Handle, e.now())
	if ev.Kind == KindContact {
		return e.advance(ctx, s, ev)
	}
	if err := e.sessions.Put(ctx, s); err != nil {
		return e.storageFailure(ctx, ev, err)
	}
	return handled{outcome: OutcomeAdvanced, replies: []notifyModels.Message{prompt(s)}}, nil
}

func (e *Engine) advance(ctx context.Context, s session.Session, ev Event) (handled, error) {
	res, err := e.machine.Step(ctx, s, ev)
	if err != nil {
		e.logger.WarnContext(ctx, "event not applied",
			"requester_id", ev.RequesterID,
			"state", s.State,
			"error", err,
		)
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			return handled{
				outcome: outcomeUnavailable,
				replies: []notifyModels.Message{reply(ev.RequesterID, textUnavailable)},
			}, nil
		}
		return handled{
			outcome: outcomeFailed,
			replies: []notifyModels.Message{reply(ev.RequesterID, textUnavailable)},
		}, err
	}

	switch res.Outcome {
	case OutcomeAdvanced, OutcomeFinalized:
		err = e.sessions.Put(ctx, res.Session)
	case OutcomeCleared:
		err = e.sessions.Clear(ctx, ev.RequesterID)
	}
	h := handled{outcome: res.Outcome, replies: res.Replies, request: res.Request}
	if err != nil {
		e.logger.ErrorContext(ctx, "session not saved",
			"requester_id", ev.RequesterID,
			"outcome", res.Outcome,
			"error", err,
		)
		if res.Request == nil {
			return handled{
				outcome: outcomeUnavailable,
				replies: []notifyModels.Message{reply(ev.RequesterID, textUnavailable)},
			}, dErrors.Wrap(err, dErrors.CodeUnavailable, "session not saved")
		}
		// The request is already numbered and recorded; announce it anyway.
		return h, dErrors.Wrap(err, dErrors.CodeUnavailable, "session not saved")
	}
	return h, nil
}

func (e *Engine) storageFailure(ctx context.Context, ev Event, err error) (handled, error) {
	e.logger.ErrorContext(ctx, "session store failed",
		"requester_id", ev.RequesterID,
		"error", err,
	)
	return handled{
		outcome: outcomeUnavailable,
		replies: []notifyModels.Message{reply(ev.RequesterID, textUnavailable)},
	}, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store unavailable")
}
