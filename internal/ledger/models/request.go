package models

import (
	"errors"
	"time"

	id "gatepass/pkg/domain"
)

// Status is the acknowledgment state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

func (s Status) String() string { return string(s) }

// Requester is the identity snapshot taken when the request was finalized.
type Requester struct {
	ID     id.RequesterID
	Name   string
	Flat   string
	Phone  string
	Handle string
}

// Request is a finalized pass request. Only Status ever changes after
// creation, and only from pending to accepted.
type Request struct {
	ID        id.RequestID
	PassType  id.PassType
	Requester Requester
	Plate     string
	GuestName string
	Schedule  id.Schedule
	Duration  id.StayDuration
	Status    Status
	CreatedAt time.Time
}

// Columns is the fixed header of a durable request row.
var Columns = []string{
	"id", "type", "name", "flat", "phone", "handle",
	"plate", "guest", "schedule", "status", "duration", "logged_at",
}

// Row renders the request in the fixed column order of Columns.
func (r *Request) Row() []string {
	return []string{
		r.ID.String(),
		r.PassType.String(),
		r.Requester.Name,
		r.Requester.Flat,
		r.Requester.Phone,
		r.Requester.Handle,
		r.Plate,
		r.GuestName,
		r.Schedule.Descriptor(),
		r.Status.String(),
		r.Duration.Label(),
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

var ErrNoRowID = errors.New("row has no request id")

// RowID extracts the sequence id from the first column of a stored row.
func RowID(row []string) (id.RequestID, error) {
	if len(row) == 0 {
		return 0, ErrNoRowID
	}
	n, err := id.ParseRequestID(row[0])
	if err != nil {
		return 0, ErrNoRowID
	}
	return n, nil
}

// Accept moves a pending request to accepted. It reports whether the
// status changed.
func (r *Request) Accept() bool {
	if r.Status != StatusPending {
		return false
	}
	r.Status = StatusAccepted
	return true
}
