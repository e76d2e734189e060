package service

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/ledger/models"
	"gatepass/internal/ledger/store"
	"gatepass/internal/platform/metrics"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
}

func request(n id.RequestID) *models.Request {
	return &models.Request{
		ID:        n,
		PassType:  id.PassGuest,
		Requester: models.Requester{ID: 1, Name: "Resident", Flat: "3"},
		GuestName: "Guest",
		Schedule:  id.Schedule{Day: id.DayImmediate},
		Duration:  id.StayUpToHour,
		Status:    models.StatusPending,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *LedgerSuite) TestConcurrentAllocationIsGapFree() {
	backing := store.NewInMemory()
	for n := id.RequestID(1); n <= 7; n++ {
		s.Require().NoError(backing.Append(s.ctx, request(n)))
	}
	ledger := New(backing)
	s.Require().Equal(id.RequestID(7), ledger.RecoverLastID(s.ctx))

	const workers = 64
	ids := make([]id.RequestID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = ledger.NextID()
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i, got := range ids {
		s.Equal(id.RequestID(8+i), got)
	}
}

func (s *LedgerSuite) TestRecoveryAfterRestart() {
	path := filepath.Join(s.T().TempDir(), "requests.csv")

	first := New(store.NewFile(path))
	s.Equal(id.RequestID(0), first.RecoverLastID(s.ctx))
	for i := 0; i < 5; i++ {
		s.Require().NoError(first.Append(s.ctx, request(first.NextID())))
	}

	restarted := New(store.NewFile(path))
	s.Equal(id.RequestID(0), restarted.LastID())
	s.Equal(id.RequestID(5), restarted.RecoverLastID(s.ctx))
	s.Equal(id.RequestID(5), restarted.LastID())
	s.Equal(id.RequestID(6), restarted.NextID())
	s.Equal(id.RequestID(6), restarted.LastID())
}

func (s *LedgerSuite) TestRecoverFromUnreadableStoreStartsAtZero() {
	ledger := New(failingStore{err: sentinel.ErrUnavailable})
	s.Equal(id.RequestID(0), ledger.RecoverLastID(s.ctx))
	s.Equal(id.RequestID(1), ledger.NextID())
}

func (s *LedgerSuite) TestAllocatedIDIsConsumedWhenAppendFails() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ledger := New(failingStore{err: errors.New("disk full")}, WithMetrics(m))

	first := ledger.NextID()
	err := ledger.Append(s.ctx, request(first))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(1.0, testutil.ToFloat64(m.LedgerAppendFailures))

	s.Equal(first+1, ledger.NextID())
}

func (s *LedgerSuite) TestMarkAccepted() {
	s.Run("store with status updates", func() {
		backing := store.NewInMemory()
		s.Require().NoError(backing.Append(s.ctx, request(1)))
		ledger := New(backing)

		s.Require().NoError(ledger.MarkAccepted(s.ctx, 1))
		s.Equal(models.StatusAccepted, backing.All()[0].Status)

		err := ledger.MarkAccepted(s.ctx, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("append-only store is a no-op", func() {
		ledger := New(store.NewFile(filepath.Join(s.T().TempDir(), "r.csv")))
		s.NoError(ledger.MarkAccepted(s.ctx, 1))
	})
}

type failingStore struct {
	err error
}

func (f failingStore) Append(context.Context, *models.Request) error { return f.err }

func (f failingStore) LastID(context.Context) (id.RequestID, error) { return 0, f.err }
