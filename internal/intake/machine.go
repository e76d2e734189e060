package intake

import (
	"context"
	"log/slog"
	"time"

	ledger "gatepass/internal/ledger/models"
	notify "gatepass/internal/notify/models"
	resident "gatepass/internal/resident/models"
	session "gatepass/internal/session/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Identity resolves and registers residents.
type Identity interface {
	Resolve(ctx context.Context, phone string) (*resident.Resident, error)
	Upsert(ctx context.Context, requester id.RequesterID, fullName, flat, phone string) (*resident.Resident, error)
}

// Ledger allocates request ids and records finalized requests.
type Ledger interface {
	NextID() id.RequestID
	Append(ctx context.Context, req *ledger.Request) error
}

// Finalizer turns a complete session into a request and its announcements.
type Finalizer interface {
	Finalize(ctx context.Context, s session.Session, requestID id.RequestID) (*ledger.Request, []notify.Message, error)
}

// Outcome tells the engine what to do with the session after a step.
type Outcome string

const (
	// OutcomeAdvanced stores Result.Session.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeFinalized stores Result.Session, a fresh session for the
	// next request.
	OutcomeFinalized Outcome = "finalized"
	// OutcomeCleared removes the session.
	OutcomeCleared Outcome = "cleared"
	// OutcomeUnchanged and OutcomeRejected leave the stored session as is.
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// Result is the effect of one event.
type Result struct {
	Outcome Outcome
	Session session.Session
	Replies []notify.Message
	Request *ledger.Request
}

func advanced(s session.Session, replies ...notify.Message) Result {
	return Result{Outcome: OutcomeAdvanced, Session: s, Replies: replies}
}

// Machine is the pure transition function of the intake conversation. It
// never touches the session store; the Engine owns reads and writes.
type Machine struct {
	identity  Identity
	ledger    Ledger
	finalizer Finalizer
	phones    []string
	logger    *slog.Logger
	now       func() time.Time
}

type MachineOption func(*Machine)

func WithMachineLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithDirectory sets the security phone numbers offered from the menu.
func WithDirectory(phones []string) MachineOption {
	return func(m *Machine) {
		m.phones = phones
	}
}

func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(identity Identity, ledger Ledger, finalizer Finalizer, opts ...MachineOption) *Machine {
	m := &Machine{
		identity:  identity,
		ledger:    ledger,
		finalizer: finalizer,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step applies ev to s. Input that does not fit the current state is
// rejected: the session is left alone and the current prompt is shown
// again. An error is returned only when a collaborator could not answer;
// the session must then stay as it was.
func (m *Machine) Step(ctx context.Context, s session.Session, ev Event) (Result, error) {
	switch ev.command() {
	case CommandCancel:
		return cancelled(s), nil
	case CommandID:
		return Result{Outcome: OutcomeUnchanged, Session: s, Replies: []notify.Message{identity(s.RequesterID)}}, nil
	}
	if ev.Handle != "" {
		s.Requester.Handle = ev.Handle
	}

	var (
		res Result
		ok  bool
		err error
	)
	switch s.State {
	case session.StateAwaitingContact:
		res, ok, err = m.stepContact(ctx, s, ev)
	case session.StateAwaitingRegistrationName:
		res, ok = stepRegistrationName(s, ev)
	case session.StateAwaitingRegistrationFlat:
		res, ok, err = m.stepRegistrationFlat(ctx, s, ev)
	case session.StateChoosingPassType:
		res, ok = m.stepPassType(s, ev)
	case session.StateAwaitingVehiclePlate, session.StateAwaitingGuestName:
		res, ok = stepEntry(s, ev)
	case session.StateChoosingSchedule, session.StateChoosingTimeOfDay:
		if ev.action() == ActionCancel {
			return cancelled(s), nil
		}
		res, ok = stepSchedule(s, ev)
	case session.StateChoosingDuration:
		res, ok, err = m.stepDuration(ctx, s, ev)
	}
	if err != nil {
		return Result{}, err
	}
	if !ok {
		m.logger.DebugContext(ctx, "input rejected",
			"requester_id", s.RequesterID,
			"state", s.State,
			"kind", ev.Kind,
		)
		return Result{Outcome: OutcomeRejected, Session: s, Replies: []notify.Message{prompt(s)}}, nil
	}
	if res.Outcome == OutcomeAdvanced || res.Outcome == OutcomeFinalized {
		res.Session.UpdatedAt = m.now()
	}
	return res, nil
}

func cancelled(s session.Session) Result {
	s.State = session.StateCancelled
	return Result{Outcome: OutcomeCleared, Session: s, Replies: []notify.Message{reply(s.RequesterID, textCancelled)}}
}

func (m *Machine) stepContact(ctx context.Context, s session.Session, ev Event) (Result, bool, error) {
	if ev.Kind != KindContact {
		return Result{}, false, nil
	}
	phone := resident.NormalizePhone(ev.Payload)
	if phone == "" {
		return Result{}, false, nil
	}

	found, err := m.identity.Resolve(ctx, ev.Payload)
	switch {
	case err == nil:
		s.Requester.Name = found.FullName
		s.Requester.Flat = found.Flat
		s.Requester.Phone = found.Phone
		s.State = session.StateChoosingPassType
		return advanced(s, welcome(s.RequesterID, found.FullName, found.Flat), menu(s.RequesterID)), true, nil
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		s.Requester.Phone = phone
		s.State = session.StateAwaitingRegistrationName
		return advanced(s, reply(s.RequesterID, textNotFound)), true, nil
	}
	return Result{}, false, err
}

func stepRegistrationName(s session.Session, ev Event) (Result, bool) {
	name := ev.text()
	if name == "" {
		return Result{}, false
	}
	s.Requester.Name = name
	s.State = session.StateAwaitingRegistrationFlat
	return advanced(s, prompt(s)), true
}

func (m *Machine) stepRegistrationFlat(ctx context.Context, s session.Session, ev Event) (Result, bool, error) {
	flat := ev.text()
	if flat == "" {
		return Result{}, false, nil
	}
	saved, err := m.identity.Upsert(ctx, s.RequesterID, s.Requester.Name, flat, s.Requester.Phone)
	if dErrors.HasCode(err, dErrors.CodeValidation) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	s.Requester.Name = saved.FullName
	s.Requester.Flat = saved.Flat
	s.Requester.Phone = saved.Phone
	s.State = session.StateChoosingPassType
	return advanced(s, registered(s.RequesterID, saved.FullName, saved.Flat), menu(s.RequesterID)), true, nil
}

func (m *Machine) stepPassType(s session.Session, ev Event) (Result, bool) {
	switch ev.action() {
	case ActionVehicle:
		s.ResetRequest()
		s.PassType = id.PassVehicle
		s.State = session.StateAwaitingVehiclePlate
		return advanced(s, prompt(s)), true
	case ActionGuest:
		s.ResetRequest()
		s.PassType = id.PassGuest
		s.State = session.StateAwaitingGuestName
		return advanced(s, prompt(s)), true
	case ActionDirectory:
		return Result{
			Outcome: OutcomeUnchanged,
			Session: s,
			Replies: []notify.Message{directory(s.RequesterID, m.phones), menu(s.RequesterID)},
		}, true
	case ActionNewRequest:
		return Result{Outcome: OutcomeUnchanged, Session: s, Replies: []notify.Message{menu(s.RequesterID)}}, true
	case ActionCancel:
		return cancelled(s), true
	}
	return Result{}, false
}

// stepEntry handles the plate or guest name. Back is the only backward
// transition in the conversation.
func stepEntry(s session.Session, ev Event) (Result, bool) {
	switch ev.action() {
	case ActionBack:
		s.ResetRequest()
		s.State = session.StateChoosingPassType
		return advanced(s, menu(s.RequesterID)), true
	case ActionCancel:
		return cancelled(s), true
	}
	text := ev.text()
	if text == "" {
		return Result{}, false
	}
	if s.State == session.StateAwaitingVehiclePlate {
		s.Plate = text
	} else {
		s.GuestName = text
	}
	s.State = session.StateChoosingSchedule
	return advanced(s, prompt(s)), true
}

func (m *Machine) stepDuration(ctx context.Context, s session.Session, ev Event) (Result, bool, error) {
	if ev.action() == ActionCancel {
		return cancelled(s), true, nil
	}
	d, ok := durationActions[ev.action()]
	if !ok {
		return Result{}, false, nil
	}
	s.Duration = d
	res, err := m.finalize(ctx, s)
	return res, err == nil, err
}

// finalize allocates the id, builds the announcements and records the
// request. A failed append only degrades durability.
func (m *Machine) finalize(ctx context.Context, s session.Session) (Result, error) {
	requestID := m.ledger.NextID()
	req, msgs, err := m.finalizer.Finalize(ctx, s, requestID)
	if err != nil {
		m.logger.ErrorContext(ctx, "finalize failed",
			"requester_id", s.RequesterID,
			"request_id", requestID,
			"error", err,
		)
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "finalize failed")
	}
	if err := m.ledger.Append(ctx, req); err != nil {
		m.logger.WarnContext(ctx, "request kept without durable record",
			"request_id", requestID,
			"error", err,
		)
	}
	return Result{
		Outcome: OutcomeFinalized,
		Session: s.Restart(m.now()),
		Replies: msgs,
		Request: req,
	}, nil
}
