package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	ledger "gatepass/internal/ledger/models"
	id "gatepass/pkg/domain"
)

const (
	EventRequestCreated  = "pass_request.created"
	EventRequestAccepted = "pass_request.accepted"
)

// Publisher writes keyed records to the request lifecycle stream.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// LifecycleEvent is the record published when a request is created or
// accepted. Records are keyed by request id.
type LifecycleEvent struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	RequestID   id.RequestID    `json:"request_id"`
	RequesterID id.RequesterID  `json:"requester_id"`
	PassType    id.PassType     `json:"pass_type,omitempty"`
	Schedule    string          `json:"schedule,omitempty"`
	Duration    id.StayDuration `json:"duration,omitempty"`
	Status      ledger.Status   `json:"status"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func createdEvent(req *ledger.Request, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:     uuid.NewString(),
		Type:        EventRequestCreated,
		RequestID:   req.ID,
		RequesterID: req.Requester.ID,
		PassType:    req.PassType,
		Schedule:    req.Schedule.Descriptor(),
		Duration:    req.Duration,
		Status:      req.Status,
		OccurredAt:  now.UTC(),
	}
}

func acceptedEvent(requester id.RequesterID, request id.RequestID, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:     uuid.NewString(),
		Type:        EventRequestAccepted,
		RequestID:   request,
		RequesterID: requester,
		Status:      ledger.StatusAccepted,
		OccurredAt:  now.UTC(),
	}
}

// publish is best-effort: failures are logged and never reach the caller.
func (d *Dispatcher) publish(ctx context.Context, evt LifecycleEvent) {
	if d.publisher == nil {
		return
	}
	value, err := json.Marshal(evt)
	if err != nil {
		d.logger.ErrorContext(ctx, "encode lifecycle event", "error", err)
		return
	}
	headers := map[string]string{"event_type": evt.Type, "event_id": evt.EventID}
	if err := d.publisher.Publish(ctx, []byte(evt.RequestID.String()), value, headers); err != nil {
		d.logger.WarnContext(ctx, "lifecycle event not published",
			"event_type", evt.Type,
			"request_id", evt.RequestID,
			"error", err,
		)
	}
}
