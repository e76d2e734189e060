package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gatepass/internal/ledger/models"
	"gatepass/internal/platform/metrics"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// Store is the durable request log.
type Store interface {
	Append(ctx context.Context, req *models.Request) error
	// LastID returns the highest persisted id. sentinel.ErrNotFound means
	// nothing has been persisted yet.
	LastID(ctx context.Context) (id.RequestID, error)
}

// StatusUpdater is implemented by stores that can durably record
// acknowledgment.
type StatusUpdater interface {
	MarkAccepted(ctx context.Context, requestID id.RequestID) error
}

// Ledger allocates request sequence ids and records finalized requests.
// One process owns the counter.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	lastID id.RequestID
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecoverLastID seeds the counter from storage so ids are never reused
// across restarts. Unreadable or missing storage starts the sequence at zero.
func (l *Ledger) RecoverLastID(ctx context.Context) id.RequestID {
	last, err := l.store.LastID(ctx)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		l.logger.InfoContext(ctx, "request ledger is empty, starting at 1")
		last = 0
	case err != nil:
		l.logger.WarnContext(ctx, "request ledger unreadable, starting at 1", "error", err)
		last = 0
	}

	l.mu.Lock()
	if last > l.lastID {
		l.lastID = last
	}
	last = l.lastID
	l.mu.Unlock()

	l.metrics.SetLedgerLastID(uint64(last))
	l.logger.InfoContext(ctx, "request ledger recovered", "last_id", last)
	return last
}

// NextID allocates the next sequence id. An allocated id is never handed out
// again, even if the request it was meant for is never appended.
func (l *Ledger) NextID() id.RequestID {
	l.mu.Lock()
	l.lastID++
	next := l.lastID
	l.mu.Unlock()

	l.metrics.SetLedgerLastID(uint64(next))
	return next
}

// LastID is the highest id allocated so far, recovered or issued.
func (l *Ledger) LastID() id.RequestID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

// Append records a finalized request. A failure is logged and counted, and
// returned as CodeUnavailable so callers can continue with degraded
// durability.
func (l *Ledger) Append(ctx context.Context, req *models.Request) error {
	if err := l.store.Append(ctx, req); err != nil {
		l.metrics.IncLedgerAppendFailure()
		l.logger.ErrorContext(ctx, "request not persisted",
			"request_id", req.ID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "request not persisted")
	}
	l.logger.InfoContext(ctx, "request persisted",
		"request_id", req.ID,
		"pass_type", req.PassType,
	)
	return nil
}

// MarkAccepted records acknowledgment when the store supports it. Stores
// without status updates keep the append-only log as is.
func (l *Ledger) MarkAccepted(ctx context.Context, requestID id.RequestID) error {
	updater, ok := l.store.(StatusUpdater)
	if !ok {
		return nil
	}
	if err := updater.MarkAccepted(ctx, requestID); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Wrap(err, dErrors.CodeInvalidState, "request is not pending")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "request status not persisted")
	}
	return nil
}
