package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessgate/internal/clock"
	"github.com/smallbiznis/accessgate/internal/config"
	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  waitlistdomain.Repository
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    waitlistdomain.Repository
	clock   clock.Clock
	enabled bool
}

func NewService(p Params) waitlistdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("waitlist.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   c,
		enabled: p.Cfg.Waitlist.Enabled,
	}
}

func (s *Service) Join(ctx context.Context, req waitlistdomain.JoinRequest) (waitlistdomain.Entry, bool, error) {
	if !s.enabled {
		return waitlistdomain.Entry{}, false, waitlistdomain.ErrDisabled
	}
	in, err := normalizeJoin(req)
	if err != nil {
		return waitlistdomain.Entry{}, false, err
	}

	entry := &waitlistdomain.Entry{
		ID:        s.genID.Generate(),
		Email:     in.email,
		Name:      in.name,
		Handle:    in.handle,
		Phone:     in.phone,
		Referrer:  in.referrer,
		Notes:     in.notes,
		Status:    waitlistdomain.StatusWaitlisted,
		CreatedAt: s.clock.Now(),
	}
	stored, created, err := s.repo.InsertIfAbsent(ctx, s.db, entry)
	if err != nil {
		return waitlistdomain.Entry{}, false, err
	}
	if created {
		s.log.Info("waitlist entry created", zap.String("entry_id", stored.ID.String()))
	}
	return *stored, created, nil
}
