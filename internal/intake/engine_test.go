package intake_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatepass/internal/access"
	"gatepass/internal/intake"
	ledgerModels "gatepass/internal/ledger/models"
	ledgerService "gatepass/internal/ledger/service"
	ledgerStore "gatepass/internal/ledger/store"
	"gatepass/internal/notify"
	notifyModels "gatepass/internal/notify/models"
	"gatepass/internal/platform/metrics"
	residentModels "gatepass/internal/resident/models"
	residentService "gatepass/internal/resident/service"
	residentMocks "gatepass/internal/resident/service/mocks"
	residentStore "gatepass/internal/resident/store"
	session "gatepass/internal/session/models"
	sessionStore "gatepass/internal/session/store"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const (
	securityChat id.ChatID      = -500
	guard        id.RequesterID = 555
	ivan         id.RequesterID = 100
	olena        id.RequesterID = 200
	newcomer     id.RequesterID = 300
	stranger     id.RequesterID = 999
)

type EngineSuite struct {
	suite.Suite
	ctx        context.Context
	residents  *residentStore.InMemory
	requests   *ledgerStore.InMemory
	ledger     *ledgerService.Ledger
	sender     *notify.MemorySender
	dispatcher *notify.Dispatcher
	sessions   *sessionStore.InMemory
	metrics    *metrics.Metrics
	engine     *intake.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.residents = residentStore.NewInMemory()
	s.seedResident(ivan, "Ivan Petrenko", "12", "380501234567")
	s.seedResident(olena, "Olena Shevchenko", "7B", "380671112233")

	s.requests = ledgerStore.NewInMemory()
	s.ledger = ledgerService.New(s.requests)
	s.ledger.RecoverLastID(s.ctx)

	s.metrics = metrics.New(prometheus.NewRegistry())
	s.sender = notify.NewMemorySender()
	s.dispatcher = notify.NewDispatcher(s.sender, securityChat,
		notify.WithCorrelator(notify.NewCorrelator("test-secret")),
		notify.WithStatusRecorder(s.ledger),
		notify.WithIssuedIDs(s.ledger),
	)
	s.sessions = sessionStore.NewInMemory()
	s.engine = s.newEngine(residentService.New(s.residents), access.NewAllowlist(int64(ivan), int64(olena), int64(newcomer)))
}

func (s *EngineSuite) newEngine(identity intake.Identity, gate access.Gate) *intake.Engine {
	machine := intake.NewMachine(identity, s.ledger, s.dispatcher,
		intake.WithDirectory([]string{"+38 (050) 788-42-14", "+38 (095) 384-33-56"}),
	)
	return intake.NewEngine(machine, s.sessions, gate, s.dispatcher, intake.WithMetrics(s.metrics))
}

func (s *EngineSuite) seedResident(requester id.RequesterID, name, flat, phone string) {
	r, err := residentModels.NewResident(requester, name, flat, phone, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.residents.Save(s.ctx, r))
}

func (s *EngineSuite) text(r id.RequesterID, payload string) {
	s.Require().NoError(s.engine.Handle(s.ctx, intake.Event{RequesterID: r, Kind: intake.KindText, Payload: payload}))
}

func (s *EngineSuite) press(r id.RequesterID, key string) {
	s.Require().NoError(s.engine.Handle(s.ctx, intake.Event{RequesterID: r, Kind: intake.KindButton, Payload: key}))
}

// acknowledge presses key on the security channel alert.
func (s *EngineSuite) acknowledge(presser id.RequesterID, key string) {
	s.Require().NoError(s.engine.Handle(s.ctx, intake.Event{
		RequesterID: presser,
		Kind:        intake.KindButton,
		Payload:     key,
		MessageRef:  notifyModels.MessageRef{Chat: securityChat},
	}))
}

func (s *EngineSuite) share(r id.RequesterID, phone string) {
	s.Require().NoError(s.engine.Handle(s.ctx, intake.Event{RequesterID: r, Handle: "user" + r.String(), Kind: intake.KindContact, Payload: phone}))
}

func (s *EngineSuite) state(r id.RequesterID) session.State {
	sess, err := s.sessions.Get(s.ctx, r)
	if errors.Is(err, sentinel.ErrNotFound) {
		return ""
	}
	s.Require().NoError(err)
	return sess.State
}

func (s *EngineSuite) last(chat id.ChatID) notifyModels.Message {
	sent := s.sender.Sent(chat)
	s.Require().NotEmpty(sent)
	return sent[len(sent)-1]
}

// identify brings a seeded resident to the pass menu.
func (s *EngineSuite) identify(r id.RequesterID, phone string) {
	s.text(r, "/start")
	s.Require().Equal(session.StateAwaitingContact, s.state(r))
	s.share(r, phone)
	s.Require().Equal(session.StateChoosingPassType, s.state(r))
}

func (s *EngineSuite) securityKey(request id.RequestID) string {
	for _, m := range s.sender.Sent(securityChat) {
		if strings.Contains(m.Text, fmt.Sprintf("Request #%d\n", request)) {
			return m.Actions[0].Key
		}
	}
	s.FailNow("no security alert", "request %d", request)
	return ""
}

func (s *EngineSuite) TestKnownResidentVehicleImmediate() {
	s.identify(ivan, "0501234567")
	s.Contains(s.sender.Sent(ivan.Chat())[1].Text, "Welcome, Ivan Petrenko")

	s.press(ivan, intake.ActionVehicle)
	s.Equal(session.StateAwaitingVehiclePlate, s.state(ivan))
	s.text(ivan, "AA1234BB")
	s.Equal(session.StateChoosingSchedule, s.state(ivan))
	s.press(ivan, intake.ActionNow)
	s.Equal(session.StateChoosingDuration, s.state(ivan))
	s.press(ivan, "dur:1")

	requests := s.requests.All()
	s.Require().Len(requests, 1)
	req := requests[0]
	s.Equal(id.RequestID(1), req.ID)
	s.Equal(id.PassVehicle, req.PassType)
	s.Equal("AA1234BB", req.Plate)
	s.Equal("immediate", req.Schedule.Descriptor())
	s.Equal(id.StayUpToHour, req.Duration)
	s.Equal(ledgerModels.StatusPending, req.Status)
	s.Equal("Ivan Petrenko", req.Requester.Name)
	s.Equal("380501234567", req.Requester.Phone)
	s.Equal("user100", req.Requester.Handle)

	alerts := s.sender.Sent(securityChat)
	s.Require().Len(alerts, 1)
	s.Contains(alerts[0].Text, "Request #1\n")
	confirmation := s.last(ivan.Chat())
	s.Contains(confirmation.Text, "Request #1\n")
	s.Equal(notify.ActionNewRequest, confirmation.Actions[0].Key)

	s.Equal(session.StateChoosingPassType, s.state(ivan), "a fresh request can start right away")
	sess, err := s.sessions.Get(s.ctx, ivan)
	s.Require().NoError(err)
	s.Empty(sess.Plate)
	s.Equal("Ivan Petrenko", sess.Requester.Name)
}

func (s *EngineSuite) TestUnknownPhoneRegistersOnce() {
	s.text(newcomer, "/start")
	s.share(newcomer, "093 123 45 67")
	s.Equal(session.StateAwaitingRegistrationName, s.state(newcomer))
	s.Contains(s.last(newcomer.Chat()).Text, "not found")

	s.text(newcomer, "Petro Ivanenko")
	s.Equal(session.StateAwaitingRegistrationFlat, s.state(newcomer))
	s.text(newcomer, " 5a ")
	s.Equal(session.StateChoosingPassType, s.state(newcomer))

	saved, err := s.residents.FindByID(s.ctx, newcomer)
	s.Require().NoError(err)
	s.Equal("Petro Ivanenko", saved.FullName)
	s.Equal("5A", saved.Flat)
	s.Equal("380931234567", saved.Phone)

	s.text(newcomer, "/start")
	s.share(newcomer, "+380931234567")
	s.Equal(session.StateChoosingPassType, s.state(newcomer), "second conversation skips registration")
	s.Contains(s.sender.Sent(newcomer.Chat())[len(s.sender.Sent(newcomer.Chat()))-2].Text, "Welcome, Petro Ivanenko")
}

func (s *EngineSuite) TestGuestTomorrowSecondHalf() {
	s.identify(olena, "380671112233")
	s.press(olena, intake.ActionGuest)
	s.text(olena, "Taras Bondar")
	s.Contains(s.last(olena.Chat()).Text, "visit")
	s.press(olena, intake.ActionTomorrow)
	s.Equal(session.StateChoosingTimeOfDay, s.state(olena))
	s.press(olena, intake.ActionSecondHalf)
	s.press(olena, "dur:2")

	requests := s.requests.All()
	s.Require().Len(requests, 1)
	s.Equal(id.PassGuest, requests[0].PassType)
	s.Equal("Taras Bondar", requests[0].GuestName)
	s.Empty(requests[0].Plate)
	s.Equal("tomorrow, second half", requests[0].Schedule.Descriptor())
	s.Equal(id.StayOneToTwo, requests[0].Duration)
}

func (s *EngineSuite) TestExactTime() {
	s.identify(ivan, "380501234567")
	s.press(ivan, intake.ActionVehicle)
	s.text(ivan, "KA7777KA")
	s.press(ivan, intake.ActionToday)
	s.press(ivan, intake.ActionExactTime)
	s.Equal(session.StateChoosingTimeOfDay, s.state(ivan))
	s.Contains(s.last(ivan.Chat()).Text, "exact time")

	s.press(ivan, intake.ActionFirstHalf)
	s.Equal(session.StateChoosingTimeOfDay, s.state(ivan), "a slot button is not a time")

	s.text(ivan, "14:30")
	s.Equal(session.StateChoosingDuration, s.state(ivan))
	s.press(ivan, "dur:3")

	requests := s.requests.All()
	s.Require().Len(requests, 1)
	s.Equal("today, 14:30", requests[0].Schedule.Descriptor())
	s.Equal(id.StayTwoToFour, requests[0].Duration)
}

func (s *EngineSuite) TestAcknowledgmentReachesOnlyItsRequester() {
	s.ledger.NextID()
	s.ledger.NextID()

	s.identify(ivan, "380501234567")
	s.press(ivan, intake.ActionVehicle)
	s.text(ivan, "AA0003AA")
	s.press(ivan, intake.ActionNow)
	s.press(ivan, "dur:1")

	s.identify(olena, "380671112233")
	s.press(olena, intake.ActionGuest)
	s.text(olena, "Guest Four")
	s.press(olena, intake.ActionNow)
	s.press(olena, "dur:1")

	olenaBefore := len(s.sender.Sent(olena.Chat()))
	key := s.securityKey(3)
	s.Require().NoError(s.engine.Handle(s.ctx, intake.Event{
		RequesterID: guard,
		Kind:        intake.KindButton,
		Payload:     key,
		MessageRef:  notifyModels.MessageRef{Chat: securityChat, MessageID: "1"},
	}))

	s.Equal("✅ Your request #3 was accepted by security.", s.last(ivan.Chat()).Text)
	s.Len(s.sender.Sent(olena.Chat()), olenaBefore)

	status3, _ := s.dispatcher.Status(3)
	status4, _ := s.dispatcher.Status(4)
	s.Equal(ledgerModels.StatusAccepted, status3)
	s.Equal(ledgerModels.StatusPending, status4)

	for _, req := range s.requests.All() {
		if req.ID == 4 {
			s.Equal(ledgerModels.StatusPending, req.Status)
		}
		if req.ID == 3 {
			s.Equal(ledgerModels.StatusAccepted, req.Status)
		}
	}
	s.Require().Len(s.sender.Edits(), 1)
	s.True(strings.HasSuffix(s.sender.Edits()[0].Text, "✅ Accepted"))
}

func (s *EngineSuite) TestReplayedAcknowledgmentNotifiesOnce() {
	s.identify(ivan, "380501234567")
	s.press(ivan, intake.ActionVehicle)
	s.text(ivan, "AA0001AA")
	s.press(ivan, intake.ActionNow)
	s.press(ivan, "dur:1")
	key := s.securityKey(1)

	s.acknowledge(guard, key)
	s.acknowledge(guard, key)

	notices := 0
	for _, m := range s.sender.Sent(ivan.Chat()) {
		if strings.Contains(m.Text, "accepted by security") {
			notices++
		}
	}
	s.Equal(1, notices)
	s.Equal(session.State(""), s.state(guard), "acknowledgments never open a session")
}

func (s *EngineSuite) TestAcknowledgmentOutsideSecurityChannelIsIgnored() {
	plain := notify.NewDispatcher(s.sender, securityChat, notify.WithIssuedIDs(s.ledger), notify.WithStatusRecorder(s.ledger))
	s.dispatcher = plain
	s.engine = s.newEngine(residentService.New(s.residents), access.NewAllowlist(int64(olena)))

	s.identify(olena, "380671112233")
	s.press(olena, intake.ActionGuest)
	s.text(olena, "Guest One")
	s.press(olena, intake.ActionNow)
	s.press(olena, "dur:1")
	before := len(s.sender.Sent(olena.Chat()))

	// unsigned keys are guessable; only where they are pressed protects them
	for _, ev := range []intake.Event{
		{RequesterID: stranger, Kind: intake.KindButton, Payload: "ack:200:1"},
		{RequesterID: stranger, Kind: intake.KindButton, Payload: "ack:200:1",
			MessageRef: notifyModels.MessageRef{Chat: stranger.Chat(), MessageID: "4"}},
		{RequesterID: olena, Kind: intake.KindButton, Payload: "ack:200:1"},
		{RequesterID: guard, Kind: intake.KindButton, Payload: "ack:200:999",
			MessageRef: notifyModels.MessageRef{Chat: securityChat}},
	} {
		s.Require().NoError(s.engine.Handle(s.ctx, ev))
	}

	s.Len(s.sender.Sent(olena.Chat()), before)
	status, _ := plain.Status(1)
	s.Equal(ledgerModels.StatusPending, status)
	_, known := plain.Status(999)
	s.False(known)
	s.Equal(ledgerModels.StatusPending, s.requests.All()[0].Status)
	s.Empty(s.sender.Edits())
	s.Equal(session.State(""), s.state(stranger))

	s.acknowledge(guard, "ack:200:1")
	s.Equal("✅ Your request #1 was accepted by security.", s.last(olena.Chat()).Text)
}

func (s *EngineSuite) TestCancelStartsOver() {
	s.identify(ivan, "380501234567")
	s.press(ivan, intake.ActionVehicle)
	s.press(ivan, intake.ActionCancel)

	s.Equal(session.State(""), s.state(ivan))
	s.Contains(s.last(ivan.Chat()).Text, "Cancelled")

	s.text(ivan, "hello")
	s.Equal(session.StateAwaitingContact, s.state(ivan), "next event is a fresh entry")
	s.Contains(s.last(ivan.Chat()).Text, "phone number")
}

func (s *EngineSuite) TestCancelCommandFromRegistration() {
	s.text(newcomer, "/start")
	s.share(newcomer, "0931234567")
	s.text(newcomer, "/cancel")
	s.Equal(session.State(""), s.state(newcomer))
}

func (s *EngineSuite) TestBackDiscardsTypeSpecificFields() {
	s.identify(olena, "380671112233")
	s.press(olena, intake.ActionGuest)
	s.press(olena, intake.ActionBack)

	sess, err := s.sessions.Get(s.ctx, olena)
	s.Require().NoError(err)
	s.Equal(session.StateChoosingPassType, sess.State)
	s.Empty(sess.PassType)

	s.press(olena, intake.ActionVehicle)
	s.text(olena, "BC1111CB")
	s.press(olena, intake.ActionBack)
	s.Equal(session.StateChoosingSchedule, s.state(olena), "back is only offered while entering the plate")
}

func (s *EngineSuite) TestInconsistentInputIsRejected() {
	s.identify(ivan, "380501234567")
	before, err := s.sessions.Get(s.ctx, ivan)
	s.Require().NoError(err)

	s.text(ivan, "just chatting")
	s.press(ivan, "dur:1")
	s.press(ivan, "bogus")

	after, err := s.sessions.Get(s.ctx, ivan)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Contains(s.last(ivan.Chat()).Text, "Choose an action")
	s.Empty(s.requests.All())
	s.Equal(3.0, testutil.ToFloat64(s.metrics.EventsHandled.WithLabelValues("button", "rejected"))+
		testutil.ToFloat64(s.metrics.EventsHandled.WithLabelValues("text", "rejected")))
}

func (s *EngineSuite) TestDirectoryAndIdentityLeaveSessionAlone() {
	s.identify(ivan, "380501234567")

	s.press(ivan, intake.ActionDirectory)
	msgs := s.sender.Sent(ivan.Chat())
	s.Contains(msgs[len(msgs)-2].Text, "+38 (095) 384-33-56")
	s.Equal(session.StateChoosingPassType, s.state(ivan))

	s.press(ivan, intake.ActionVehicle)
	s.text(ivan, "/id")
	s.Equal("Your ID: 100", s.last(ivan.Chat()).Text)
	s.Equal(session.StateAwaitingVehiclePlate, s.state(ivan))
}

func (s *EngineSuite) TestAccessDenied() {
	s.text(stranger, "/start")
	s.Equal("⛔ You do not have access to this service.", s.last(stranger.Chat()).Text)
	s.Equal(session.State(""), s.state(stranger))

	s.share(stranger, "380501234567")
	s.Equal(session.State(""), s.state(stranger))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.AccessDenied))
}

func (s *EngineSuite) TestGateErrorDenies() {
	gate := access.Func(func(context.Context, id.RequesterID) (bool, error) {
		return false, errors.New("membership service down")
	})
	s.engine = s.newEngine(residentService.New(s.residents), gate)

	s.text(ivan, "/start")
	s.Contains(s.last(ivan.Chat()).Text, "do not have access")
	s.Equal(session.State(""), s.state(ivan))
}

func (s *EngineSuite) TestContactOnFirstContactIsProcessed() {
	s.share(ivan, "380501234567")
	s.Equal(session.StateChoosingPassType, s.state(ivan))
}

func (s *EngineSuite) TestIdentityStoreUnavailableKeepsState() {
	ctrl := gomock.NewController(s.T())
	store := residentMocks.NewMockStore(ctrl)
	store.EXPECT().FindByPhone(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
	s.engine = s.newEngine(residentService.New(store), access.AllowAll{})

	s.text(ivan, "/start")
	s.share(ivan, "380501234567")

	s.Equal(session.StateAwaitingContact, s.state(ivan), "a failed lookup is not an unknown resident")
	s.Contains(s.last(ivan.Chat()).Text, "temporarily unavailable")
}

func (s *EngineSuite) TestInterleavedRequestersStayIsolated() {
	s.text(ivan, "/start")
	s.text(olena, "/start")
	s.share(olena, "380671112233")
	s.share(ivan, "380501234567")
	s.press(ivan, intake.ActionVehicle)
	s.press(olena, intake.ActionGuest)
	s.text(olena, "Guest Name")
	s.text(ivan, "AA1111AA")
	s.press(olena, intake.ActionCancel)
	s.press(ivan, intake.ActionToday)

	ivanSession, err := s.sessions.Get(s.ctx, ivan)
	s.Require().NoError(err)
	s.Equal(session.StateChoosingTimeOfDay, ivanSession.State)
	s.Equal("AA1111AA", ivanSession.Plate)
	s.Empty(ivanSession.GuestName)
	s.Equal(session.State(""), s.state(olena))
}

func (s *EngineSuite) TestConcurrentRequestersGetDistinctIDs() {
	const n = 20
	for i := 0; i < n; i++ {
		s.seedResident(id.RequesterID(1000+i), fmt.Sprintf("Resident %d", i), "1", fmt.Sprintf("38050000%04d", i))
	}
	s.engine = s.newEngine(residentService.New(s.residents), access.AllowAll{})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := id.RequesterID(1000 + i)
			events := []intake.Event{
				{RequesterID: r, Kind: intake.KindText, Payload: "/start"},
				{RequesterID: r, Kind: intake.KindContact, Payload: fmt.Sprintf("38050000%04d", i)},
				{RequesterID: r, Kind: intake.KindButton, Payload: intake.ActionGuest},
				{RequesterID: r, Kind: intake.KindText, Payload: "Guest"},
				{RequesterID: r, Kind: intake.KindButton, Payload: intake.ActionNow},
				{RequesterID: r, Kind: intake.KindButton, Payload: "dur:1"},
			}
			for _, ev := range events {
				if err := s.engine.Handle(s.ctx, ev); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	requests := s.requests.All()
	s.Require().Len(requests, n)
	ids := make([]int, 0, n)
	for _, r := range requests {
		ids = append(ids, int(r.ID))
	}
	sort.Ints(ids)
	for i, got := range ids {
		s.Equal(i+1, got)
	}
}

func (s *EngineSuite) TestRejectsMalformedEvents() {
	s.Error(s.engine.Handle(s.ctx, intake.Event{Kind: intake.KindText, Payload: "x"}))
	s.Error(s.engine.Handle(s.ctx, intake.Event{RequesterID: ivan, Kind: "sticker"}))
}
