package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gatepass/internal/notify/models"
	"gatepass/internal/platform/metrics"
	"gatepass/pkg/platform/circuit"
	"gatepass/pkg/platform/sentinel"
)

// ErrRelayOpen is returned without contacting the relay while its breaker
// is open.
var ErrRelayOpen = fmt.Errorf("relay circuit open: %w", sentinel.ErrUnavailable)

// GuardedSender fails fast when the wrapped Sender keeps failing, so a
// dead relay does not hold every delivery for the full client timeout.
type GuardedSender struct {
	next    Sender
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGuardedSender(next Sender, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *GuardedSender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GuardedSender{next: next, breaker: breaker, logger: logger, metrics: m}
}

func (g *GuardedSender) Send(ctx context.Context, msg models.Message) (models.MessageRef, error) {
	if !g.breaker.Allow() {
		return models.MessageRef{}, ErrRelayOpen
	}
	ref, err := g.next.Send(ctx, msg)
	g.record(ctx, err)
	return ref, err
}

func (g *GuardedSender) Edit(ctx context.Context, ref models.MessageRef, text string) error {
	if !g.breaker.Allow() {
		return ErrRelayOpen
	}
	err := g.next.Edit(ctx, ref, text)
	g.record(ctx, err)
	return err
}

func (g *GuardedSender) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "relay circuit closed", "breaker", g.breaker.Name())
			g.metrics.SetRelayCircuitOpen(false)
		}
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "relay circuit opened", "breaker", g.breaker.Name(), "error", err)
		g.metrics.SetRelayCircuitOpen(true)
	}
}
