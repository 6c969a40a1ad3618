package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetPackage(ctx context.Context, id snowflake.ID) (domain.Package, error) {
	if id == 0 {
		return domain.Package{}, domain.ErrInvalidID
	}
	pkg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg == nil {
		return domain.Package{}, domain.ErrNotFound
	}
	return *pkg, nil
}

func (s *Service) ListPackages(ctx context.Context) ([]domain.Package, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Package, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}
