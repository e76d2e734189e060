package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	ledger "gatepass/internal/ledger/models"
	"gatepass/internal/notify/models"
	"gatepass/internal/platform/metrics"
	session "gatepass/internal/session/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

const (
	ActionNewRequest = "new_request"

	labelNewRequest = "📝 New request"
	labelAccept     = "✅ Accept"
)

// Outcome is the result of an acknowledgment attempt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInvalid   Outcome = "invalid"
)

// StatusRecorder durably records acknowledgment. A CodeInvalidState error
// means the request is already accepted.
type StatusRecorder interface {
	MarkAccepted(ctx context.Context, requestID id.RequestID) error
}

// IssuedIDs reports the highest request id handed out, typically the
// request ledger.
type IssuedIDs interface {
	LastID() id.RequestID
}

// defaultRetention bounds how long finalized requests stay in memory.
const defaultRetention = 7 * 24 * time.Hour

// pending tracks one request between finalize and acknowledgment.
type pending struct {
	requester   id.RequesterID
	status      ledger.Status
	summary     string
	securityRef models.MessageRef
	touched     time.Time
}

// Dispatcher routes finalized requests to the requester and to security and
// applies security's acknowledgment exactly once per request.
type Dispatcher struct {
	sender       Sender
	securityChat id.ChatID
	operators    map[id.RequesterID]struct{}
	correlator   *Correlator
	recorder     StatusRecorder
	issued       IssuedIDs
	publisher    Publisher
	retention    time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	now          func() time.Time

	mu        sync.Mutex
	entries   map[id.RequestID]*pending
	lastPrune time.Time
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithCorrelator sets how acknowledgment keys are minted and verified.
func WithCorrelator(c *Correlator) Option {
	return func(d *Dispatcher) {
		d.correlator = c
	}
}

// WithStatusRecorder persists acceptance, typically the request ledger.
func WithStatusRecorder(r StatusRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithIssuedIDs lets keys for requests no longer held in memory be
// accepted, as long as their id was issued.
func WithIssuedIDs(issued IssuedIDs) Option {
	return func(d *Dispatcher) {
		d.issued = issued
	}
}

// WithOperators lists requesters allowed to acknowledge from outside the
// security channel.
func WithOperators(operators ...id.RequesterID) Option {
	return func(d *Dispatcher) {
		for _, op := range operators {
			d.operators[op] = struct{}{}
		}
	}
}

// WithRetention sets how long a finalized request is kept in memory after
// its last change.
func WithRetention(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.retention = d
		}
	}
}

// WithPublisher enables lifecycle events.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(sender Sender, securityChat id.ChatID, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:       sender,
		securityChat: securityChat,
		operators:    make(map[id.RequesterID]struct{}),
		correlator:   NewCorrelator(""),
		retention:    defaultRetention,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer("gatepass/notify"),
		now:          time.Now,
		entries:      make(map[id.RequestID]*pending),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Finalize turns a complete session into a pending Request and the two
// messages announcing it. Nothing is sent here; pass the messages to
// Deliver once the requester's lock is released. An incomplete session
// yields CodeInvalidState and no messages.
func (d *Dispatcher) Finalize(ctx context.Context, s session.Session, requestID id.RequestID) (*ledger.Request, []models.Message, error) {
	if !s.IsComplete() {
		return nil, nil, dErrors.New(dErrors.CodeInvalidState, "session is not ready to finalize")
	}
	if requestID == 0 {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "request id is required")
	}

	req := &ledger.Request{
		ID:       requestID,
		PassType: s.PassType,
		Requester: ledger.Requester{
			ID:     s.RequesterID,
			Name:   s.Requester.Name,
			Flat:   s.Requester.Flat,
			Phone:  s.Requester.Phone,
			Handle: s.Requester.Handle,
		},
		Schedule:  s.Schedule,
		Duration:  s.Duration,
		Status:    ledger.StatusPending,
		CreatedAt: d.now().UTC(),
	}
	switch s.PassType {
	case id.PassVehicle:
		req.Plate = s.Plate
	case id.PassGuest:
		req.GuestName = s.GuestName
	}

	summary := RenderSummary(req)

	d.mu.Lock()
	d.pruneLocked(req.CreatedAt)
	d.entries[requestID] = &pending{
		requester: s.RequesterID,
		status:    ledger.StatusPending,
		summary:   summary,
		touched:   req.CreatedAt,
	}
	d.mu.Unlock()

	d.metrics.IncFinalized(req.PassType.String())
	d.logger.InfoContext(ctx, "request finalized",
		"request_id", requestID,
		"requester_id", s.RequesterID,
		"pass_type", req.PassType,
	)

	msgs := []models.Message{
		{
			To:        s.RequesterID.Chat(),
			Text:      summary,
			Actions:   []models.Action{{Label: labelNewRequest, Key: ActionNewRequest}},
			Recipient: models.RecipientRequester,
			RequestID: requestID,
		},
		{
			To:        d.securityChat,
			Text:      summary,
			Actions:   []models.Action{{Label: labelAccept, Key: d.correlator.Key(s.RequesterID, requestID)}},
			Recipient: models.RecipientSecurity,
			RequestID: requestID,
		},
	}
	return req, msgs, nil
}

// Announce publishes the created lifecycle event for a finalized request.
func (d *Dispatcher) Announce(ctx context.Context, req *ledger.Request) {
	d.publish(ctx, createdEvent(req, d.now()))
}

// Deliver sends msgs concurrently. Each send is independent: a failure is
// logged and counted for its recipient and does not affect the others.
// Delivered security alerts are remembered so acceptance can edit them.
func (d *Dispatcher) Deliver(ctx context.Context, msgs []models.Message) {
	var g errgroup.Group
	for _, msg := range msgs {
		g.Go(func() error {
			ref, err := d.sender.Send(ctx, msg)
			if err != nil {
				d.metrics.IncDeliveryFailure(recipientLabel(msg.Recipient))
				d.logger.WarnContext(ctx, "message not delivered",
					"to", msg.To,
					"recipient", msg.Recipient,
					"request_id", msg.RequestID,
					"error", err,
				)
				return nil
			}
			if msg.Recipient == models.RecipientSecurity && msg.RequestID != 0 {
				d.rememberSecurityRef(msg.RequestID, ref)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Acknowledge applies security's acceptance carried by key. presser is who
// pressed the action and ref the message it was pressed on, when known.
// Only presses in the security channel or by a configured operator count.
// Malformed and forged keys are ignored; a replay of an accepted key changes
// nothing. Requests no longer held in memory, after a restart for example,
// are accepted once if their id was issued.
func (d *Dispatcher) Acknowledge(ctx context.Context, key string, presser id.RequesterID, ref models.MessageRef) Outcome {
	ctx, span := d.tracer.Start(ctx, "notify.acknowledge")
	defer span.End()

	outcome, requester, request, editText, editRef := d.accept(key, presser, ref)
	if outcome == OutcomeAccepted && d.recorder != nil {
		if err := d.recorder.MarkAccepted(ctx, request); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidState) {
				outcome = OutcomeDuplicate
			} else {
				d.logger.WarnContext(ctx, "acceptance not persisted",
					"request_id", request,
					"error", err,
				)
			}
		}
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	d.metrics.IncAcknowledgment(string(outcome))

	switch outcome {
	case OutcomeInvalid:
		d.logger.WarnContext(ctx, "acknowledgment rejected",
			"key", key,
			"presser", presser,
			"chat", ref.Chat,
		)
		return outcome
	case OutcomeDuplicate:
		d.logger.DebugContext(ctx, "acknowledgment replayed", "request_id", request)
		return outcome
	}
	span.SetAttributes(attribute.Int64("request_id", int64(request)))

	d.publish(ctx, acceptedEvent(requester, request, d.now()))
	d.logger.InfoContext(ctx, "request accepted",
		"request_id", request,
		"requester_id", requester,
		"presser", presser,
	)

	var g errgroup.Group
	g.Go(func() error {
		notice := models.Message{
			To:        requester.Chat(),
			Text:      acceptedNotice(request),
			Recipient: models.RecipientRequester,
			RequestID: request,
		}
		if _, err := d.sender.Send(ctx, notice); err != nil {
			d.metrics.IncDeliveryFailure(recipientLabel(models.RecipientRequester))
			d.logger.WarnContext(ctx, "acceptance notice not delivered",
				"request_id", request,
				"error", err,
			)
		}
		return nil
	})
	if !editRef.IsZero() {
		g.Go(func() error {
			if err := d.sender.Edit(ctx, editRef, editText); err != nil {
				d.metrics.IncDeliveryFailure(recipientLabel(models.RecipientSecurity))
				d.logger.WarnContext(ctx, "security alert not resolved",
					"request_id", request,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return OutcomeAccepted
}

// authorized reports whether a press may acknowledge.
func (d *Dispatcher) authorized(presser id.RequesterID, ref models.MessageRef) bool {
	if ref.Chat != 0 && ref.Chat == d.securityChat {
		return true
	}
	_, ok := d.operators[presser]
	return ok
}

// Status reports the acknowledgment state of a request known to this
// process.
func (d *Dispatcher) Status(request id.RequestID) (ledger.Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[request]
	if !ok {
		return "", false
	}
	return e.status, true
}

func (d *Dispatcher) accept(key string, presser id.RequesterID, ref models.MessageRef) (Outcome, id.RequesterID, id.RequestID, string, models.MessageRef) {
	if !d.authorized(presser, ref) {
		return OutcomeInvalid, 0, 0, "", models.MessageRef{}
	}
	requester, request, err := d.correlator.Parse(key)
	if err != nil {
		return OutcomeInvalid, 0, 0, "", models.MessageRef{}
	}

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(now)

	e, ok := d.entries[request]
	if !ok {
		if d.issued == nil || request > d.issued.LastID() {
			return OutcomeInvalid, requester, request, "", models.MessageRef{}
		}
		e = &pending{requester: requester, status: ledger.StatusPending}
		d.entries[request] = e
	}
	if e.requester != requester {
		return OutcomeInvalid, requester, request, "", models.MessageRef{}
	}
	if e.status == ledger.StatusAccepted {
		return OutcomeDuplicate, requester, request, "", models.MessageRef{}
	}
	e.status = ledger.StatusAccepted
	e.touched = now

	if !ref.IsZero() {
		e.securityRef = ref
	}
	text := e.summary
	if text == "" {
		text = fmt.Sprintf("Request #%s", request)
	}
	return OutcomeAccepted, requester, request, text + acceptedMark, e.securityRef
}

// pruneLocked drops entries untouched for longer than the retention. It
// scans at most once a minute.
func (d *Dispatcher) pruneLocked(now time.Time) {
	if now.Sub(d.lastPrune) < time.Minute {
		return
	}
	d.lastPrune = now
	for request, e := range d.entries {
		if now.Sub(e.touched) > d.retention {
			delete(d.entries, request)
		}
	}
}

// Held reports how many requests are kept in memory.
func (d *Dispatcher) Held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Dispatcher) rememberSecurityRef(request id.RequestID, ref models.MessageRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[request]; ok && e.securityRef.IsZero() {
		e.securityRef = ref
	}
}

func recipientLabel(r models.Recipient) string {
	if r == "" {
		return "unknown"
	}
	return string(r)
}
