package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"gatepass/internal/notify/models"
)

//go:generate mockgen -source=sender.go -destination=mocks/mocks.go -package=mocks Sender

// Sender is the outbound chat transport.
type Sender interface {
	Send(ctx context.Context, msg models.Message) (models.MessageRef, error)
	// Edit replaces the text of a delivered message and drops its actions.
	Edit(ctx context.Context, ref models.MessageRef, text string) error
}

// LogSender writes outbound messages to the log instead of a chat
// transport. It is used when no relay is configured.
type LogSender struct {
	logger *slog.Logger
	seq    atomic.Uint64
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg models.Message) (models.MessageRef, error) {
	ref := models.MessageRef{Chat: msg.To, MessageID: strconv.FormatUint(s.seq.Add(1), 10)}
	s.logger.InfoContext(ctx, "outbound message",
		"to", msg.To,
		"message_id", ref.MessageID,
		"actions", len(msg.Actions),
		"text", msg.Text,
	)
	return ref, nil
}

func (s *LogSender) Edit(ctx context.Context, ref models.MessageRef, text string) error {
	s.logger.InfoContext(ctx, "outbound edit",
		"to", ref.Chat,
		"message_id", ref.MessageID,
		"text", text,
	)
	return nil
}
