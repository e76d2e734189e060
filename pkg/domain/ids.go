package domain

import (
	"strconv"
	"strings"

	dErrors "gatepass/pkg/domain-errors"
)

// RequesterID identifies a resident on the chat platform. It doubles as the
// chat the requester is reached on.
type RequesterID int64

// RequestID is the durable sequence number of a finished pass request.
type RequestID uint64

// ChatID addresses a conversation on the outbound transport: a requester's
// private chat or the security channel.
type ChatID int64

// ParseRequesterID validates a requester identity at trust boundaries.
func ParseRequesterID(s string) (RequesterID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "requester id is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "requester id must be an integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "requester id must be non-zero")
	}
	return RequesterID(v), nil
}

// ParseRequestID validates a request sequence number. Zero is never allocated.
func ParseRequestID(s string) (RequestID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "request id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "request id must be positive")
	}
	return RequestID(v), nil
}

func (id RequesterID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id RequesterID) IsNil() bool { return id == 0 }

// Chat returns the private chat of the requester.
func (id RequesterID) Chat() ChatID { return ChatID(id) }

func (id RequestID) String() string { return strconv.FormatUint(uint64(id), 10) }

func (id ChatID) String() string { return strconv.FormatInt(int64(id), 10) }
