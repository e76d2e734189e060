package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatepass/internal/platform/metrics"
	"gatepass/internal/resident/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store is the durable resident mapping with a secondary lookup by phone.
type Store interface {
	// FindByPhone returns the first resident whose stored phone equals any
	// of phones, or sentinel.ErrNotFound.
	FindByPhone(ctx context.Context, phones ...string) (*models.Resident, error)
	FindByID(ctx context.Context, requester id.RequesterID) (*models.Resident, error)
	Save(ctx context.Context, resident *models.Resident) error
}

// Service resolves and registers residents. It is the identity store the
// intake flow talks to.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve finds the resident registered with phone, matching both the raw
// and the normalized form. It returns a CodeNotFound error when nobody is
// registered and a CodeUnavailable error when the store could not answer;
// callers must not treat the latter as "unknown resident".
func (s *Service) Resolve(ctx context.Context, phone string) (*models.Resident, error) {
	keys := models.LookupKeys(phone)
	if len(keys) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
	}
	resident, err := s.store.FindByPhone(ctx, keys...)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		s.logger.ErrorContext(ctx, "resident lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resident lookup failed")
	}
	return resident, nil
}

// Upsert registers or re-registers the resident owning requester. Any
// existing record with the same identity is overwritten.
func (s *Service) Upsert(ctx context.Context, requester id.RequesterID, fullName, flat, phone string) (*models.Resident, error) {
	resident, err := models.NewResident(requester, fullName, flat, phone, s.now().UTC())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid registration")
	}
	if err := s.store.Save(ctx, resident); err != nil {
		s.logger.ErrorContext(ctx, "resident save failed",
			"requester_id", requester,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resident save failed")
	}
	s.metrics.IncResidentRegistered()
	s.logger.InfoContext(ctx, "resident registered",
		"requester_id", requester,
		"flat", resident.Flat,
	)
	return resident, nil
}

// Get returns the resident registered under requester.
func (s *Service) Get(ctx context.Context, requester id.RequesterID) (*models.Resident, error) {
	resident, err := s.store.FindByID(ctx, requester)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resident lookup failed")
	}
	return resident, nil
}
