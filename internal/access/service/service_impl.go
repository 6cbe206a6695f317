package service

import (
	"context"
	"strings"

	accessdomain "github.com/smallbiznis/accessgate/internal/access/domain"
	"github.com/smallbiznis/accessgate/internal/clock"
	entitlementdomain "github.com/smallbiznis/accessgate/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  accessdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  accessdomain.Repository
	clock clock.Clock
}

func NewService(p Params) accessdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("access.service"),
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Grant(ctx context.Context, pair entitlementdomain.Pair, version int64) error {
	return s.set(ctx, pair, true, version)
}

func (s *Service) Revoke(ctx context.Context, pair entitlementdomain.Pair, version int64) error {
	return s.set(ctx, pair, false, version)
}

func (s *Service) HasAccess(ctx context.Context, pair entitlementdomain.Pair) (bool, error) {
	if strings.TrimSpace(pair.CustomerID) == "" {
		return false, accessdomain.ErrInvalidPair
	}
	grant, err := s.repo.Find(ctx, s.db, pair)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.HasAccess, nil
}

func (s *Service) set(ctx context.Context, pair entitlementdomain.Pair, hasAccess bool, version int64) error {
	if strings.TrimSpace(pair.CustomerID) == "" {
		return accessdomain.ErrInvalidPair
	}
	applied, err := s.repo.SetAccess(ctx, s.db, pair, hasAccess, version, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		s.log.Debug("access write superseded",
			zap.String("pair", pair.String()),
			zap.Bool("has_access", hasAccess),
			zap.Int64("source_version", version),
		)
		return nil
	}
	s.log.Info("access updated",
		zap.String("pair", pair.String()),
		zap.Bool("has_access", hasAccess),
		zap.Int64("source_version", version),
	)
	return nil
}
