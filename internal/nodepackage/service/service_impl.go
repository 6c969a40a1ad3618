package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultExpireBatch = 200

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("nodepackage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetByNode(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID) (*domain.NodePackage, error) {
	if nodeID == 0 {
		return nil, domain.ErrInvalidNodeID
	}
	return s.repo.FindByNode(ctx, tx, nodeID)
}

func (s *Service) UpsertPending(ctx context.Context, tx *gorm.DB, nodeID, packageID snowflake.ID) error {
	if nodeID == 0 {
		return domain.ErrInvalidNodeID
	}
	if packageID == 0 {
		return domain.ErrInvalidPackageID
	}
	now := s.clock.Now()
	written, err := s.repo.UpsertPending(ctx, tx, &domain.NodePackage{
		ID:        s.genID.Generate(),
		NodeID:    nodeID,
		PackageID: packageID,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	if !written {
		s.log.Debug("active package kept while upgrade is pending",
			zap.String("node_id", nodeID.String()),
			zap.String("package_id", packageID.String()),
		)
	}
	return nil
}

func (s *Service) Activate(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID, pkg catalogdomain.Package) (domain.NodePackage, error) {
	if nodeID == 0 {
		return domain.NodePackage{}, domain.ErrInvalidNodeID
	}
	if pkg.ID == 0 {
		return domain.NodePackage{}, domain.ErrInvalidPackageID
	}
	now := s.clock.Now()
	expiresAt := now.Add(pkg.Duration())
	row := domain.NodePackage{
		ID:          s.genID.Generate(),
		NodeID:      nodeID,
		PackageID:   pkg.ID,
		Status:      domain.StatusActive,
		ActivatedAt: &now,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.UpsertActive(ctx, tx, &row); err != nil {
		return domain.NodePackage{}, err
	}

	stored, err := s.repo.FindByNode(ctx, tx, nodeID)
	if err != nil {
		return domain.NodePackage{}, err
	}
	if stored == nil {
		return row, nil
	}
	return *stored, nil
}

func (s *Service) CancelPending(ctx context.Context, tx *gorm.DB, nodeID, packageID snowflake.ID) (bool, error) {
	return s.repo.CancelPending(ctx, tx, nodeID, packageID, s.clock.Now())
}

func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpireBatch
	}
	now := s.clock.Now()

	var expired int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := s.repo.ListDue(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		expired, err = s.repo.Expire(ctx, tx, ids, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("expired node packages", zap.Int64("count", expired))
	}
	return int(expired), nil
}
