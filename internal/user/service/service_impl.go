package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (domain.User, error) {
	if id == 0 {
		return domain.User{}, domain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) SetVerified(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	updated, err := s.repo.MarkVerified(ctx, tx, id, s.clock.Now())
	if err != nil {
		return err
	}
	if updated {
		s.log.Debug("user verified", zap.String("user_id", id.String()))
	}
	return nil
}
