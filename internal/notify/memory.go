package notify

import (
	"context"
	"strconv"
	"sync"

	"gatepass/internal/notify/models"
	id "gatepass/pkg/domain"
)

// Edit is one recorded call to MemorySender.Edit.
type Edit struct {
	Ref  models.MessageRef
	Text string
}

// MemorySender records outbound traffic in memory. Chats registered with
// FailFor reject every send and edit.
type MemorySender struct {
	mu    sync.Mutex
	sent  []models.Message
	edits []Edit
	fail  map[id.ChatID]error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{fail: make(map[id.ChatID]error)}
}

// FailFor makes sends to chat return err.
func (s *MemorySender) FailFor(chat id.ChatID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[chat] = err
}

func (s *MemorySender) Send(_ context.Context, msg models.Message) (models.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To]; err != nil {
		return models.MessageRef{}, err
	}
	s.sent = append(s.sent, msg)
	return models.MessageRef{Chat: msg.To, MessageID: strconv.Itoa(len(s.sent))}, nil
}

func (s *MemorySender) Edit(_ context.Context, ref models.MessageRef, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[ref.Chat]; err != nil {
		return err
	}
	s.edits = append(s.edits, Edit{Ref: ref, Text: text})
	return nil
}

// Sent returns the delivered messages addressed to chat.
func (s *MemorySender) Sent(chat id.ChatID) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.sent {
		if m.To == chat {
			out = append(out, m)
		}
	}
	return out
}

// Edits returns every recorded edit.
func (s *MemorySender) Edits() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Edit, len(s.edits))
	copy(out, s.edits)
	return out
}

// Reset forgets recorded traffic.
func (s *MemorySender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.edits = nil
}
