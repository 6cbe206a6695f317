package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	ledgerdomain "github.com/smallbiznis/accessgate/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxErrorLength  = 500
	reasonLeaseLost = "lease_expired_after_final_attempt"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  ledgerdomain.Repository
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        ledgerdomain.Repository
	clock       clock.Clock
	maxAttempts int
	lease       time.Duration
}

func NewService(p Params) ledgerdomain.Service {
	maxAttempts := p.Cfg.Ledger.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	lease := p.Cfg.Ledger.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}

	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       c,
		maxAttempts: maxAttempts,
		lease:       lease,
	}
}

func (s *Service) Reserve(ctx context.Context, req ledgerdomain.ReserveRequest) (*ledgerdomain.Reservation, error) {
	eventID := strings.TrimSpace(req.ProviderEventID)
	if eventID == "" {
		return nil, ledgerdomain.ErrInvalidEventID
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return nil, ledgerdomain.ErrInvalidProvider
	}

	now := s.clock.Now()
	entry := &ledgerdomain.Entry{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: eventID,
		EventKind:       strings.TrimSpace(req.EventKind),
		Status:          ledgerdomain.StatusReserved,
		Attempts:        1,
		Payload:         datatypes.JSON(req.Payload),
		ReservedAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, entry)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &ledgerdomain.Reservation{
			EntryID:         entry.ID,
			ProviderEventID: eventID,
			Attempt:         1,
			Payload:         req.Payload,
		}, nil
	}

	existing, err := s.repo.FindByEventID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ledgerdomain.ErrReservationLost
	}

	switch existing.Status {
	case ledgerdomain.StatusProcessed:
		return nil, ledgerdomain.ErrAlreadyProcessed
	case ledgerdomain.StatusReserved:
		if now.Sub(existing.ReservedAt) < s.lease {
			return nil, ledgerdomain.ErrInFlight
		}
		if existing.Attempts >= s.maxAttempts {
			s.expire(ctx, existing, now)
			return nil, ledgerdomain.ErrRetriesExhausted
		}
	case ledgerdomain.StatusFailed:
		if existing.Attempts >= s.maxAttempts {
			return nil, ledgerdomain.ErrRetriesExhausted
		}
	}

	claimed, err := s.repo.Claim(ctx, s.db, existing.ID, existing.Attempts, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ledgerdomain.ErrInFlight
	}

	s.log.Info("ledger entry re-reserved",
		zap.String("provider_event_id", eventID),
		zap.Int("attempt", existing.Attempts+1),
	)

	return reservationFrom(existing, req.Payload), nil
}

func (s *Service) MarkProcessed(ctx context.Context, reservation *ledgerdomain.Reservation) error {
	if reservation == nil || reservation.EntryID == 0 {
		return ledgerdomain.ErrInvalidReservation
	}
	ok, err := s.repo.MarkProcessed(ctx, s.db, reservation.EntryID, reservation.Attempt, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ledgerdomain.ErrReservationLost
	}
	return nil
}

func (s *Service) MarkFailed(ctx context.Context, reservation *ledgerdomain.Reservation, cause error) error {
	if reservation == nil || reservation.EntryID == 0 {
		return ledgerdomain.ErrInvalidReservation
	}
	reason := "unknown"
	if cause != nil {
		reason = truncate(cause.Error(), maxErrorLength)
	}

	ok, err := s.repo.MarkFailed(ctx, s.db, reservation.EntryID, reservation.Attempt, reason, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ledgerdomain.ErrReservationLost
	}
	if reservation.Attempt >= s.maxAttempts {
		s.log.Error("ledger entry exhausted retry budget, manual intervention required",
			zap.String("provider_event_id", reservation.ProviderEventID),
			zap.Int("attempts", reservation.Attempt),
			zap.String("last_error", reason),
		)
	}
	return nil
}

func (s *Service) ClaimRetryable(ctx context.Context, limit int) ([]*ledgerdomain.Reservation, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.clock.Now()
	rows, err := s.repo.ListRetryable(ctx, s.db, now.Add(-s.lease), s.maxAttempts, limit)
	if err != nil {
		return nil, err
	}

	claimed := make([]*ledgerdomain.Reservation, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if row.Status == ledgerdomain.StatusReserved && row.Attempts >= s.maxAttempts {
			s.expire(ctx, &row, now)
			continue
		}
		ok, err := s.repo.Claim(ctx, s.db, row.ID, row.Attempts, now)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed = append(claimed, reservationFrom(&row, nil))
	}
	return claimed, nil
}

func (s *Service) CountExhausted(ctx context.Context) (int64, error) {
	return s.repo.CountExhausted(ctx, s.db, s.maxAttempts)
}

// expire fails a reservation whose holder vanished after the final attempt.
func (s *Service) expire(ctx context.Context, entry *ledgerdomain.Entry, now time.Time) {
	ok, err := s.repo.MarkFailed(ctx, s.db, entry.ID, entry.Attempts, reasonLeaseLost, now)
	if err != nil {
		s.log.Warn("failed to expire ledger entry", zap.String("provider_event_id", entry.ProviderEventID), zap.Error(err))
		return
	}
	if ok {
		s.log.Error("ledger entry lease expired on final attempt, manual intervention required",
			zap.String("provider_event_id", entry.ProviderEventID),
			zap.Int("attempts", entry.Attempts),
		)
	}
}

func reservationFrom(entry *ledgerdomain.Entry, fallback []byte) *ledgerdomain.Reservation {
	payload := []byte(entry.Payload)
	if len(payload) == 0 {
		payload = fallback
	}
	return &ledgerdomain.Reservation{
		EntryID:         entry.ID,
		ProviderEventID: entry.ProviderEventID,
		Attempt:         entry.Attempts + 1,
		Payload:         payload,
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
