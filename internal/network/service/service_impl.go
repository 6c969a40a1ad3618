package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/network/domain"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	userdomain "github.com/smallbiznis/sponsornet/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxDepth   = 64
	defaultMaxRetries = 3
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Rewards    *config.RewardConfigHolder
	Clock      clock.Clock
	Repo       domain.Repository
	Users      userdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	rewards    *config.RewardConfigHolder
	clock      clock.Clock
	repo       domain.Repository
	users      userdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics

	mode       domain.TreeMode
	maxDepth   int
	maxRetries int
}

func NewService(p Params) domain.Service {
	maxDepth := p.Config.Network.PlacementMaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	maxRetries := p.Config.Network.PlacementMaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("network.service"),
		genID:      p.GenID,
		rewards:    p.Rewards,
		clock:      p.Clock,
		repo:       p.Repo,
		users:      p.Users,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		mode:       domain.ParseTreeMode(p.Config.Network.TreeMode),
		maxDepth:   maxDepth,
		maxRetries: maxRetries,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterNodeRequest) (domain.RegisterNodeResult, error) {
	userID, err := parseID(req.UserID, domain.ErrInvalidUserID)
	if err != nil {
		return domain.RegisterNodeResult{}, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.RegisterNodeResult{}, err
	}

	var result domain.RegisterNodeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.RegisterNode(ctx, tx, domain.RegisterNodeInput{
			UserID:      user.ID,
			Username:    user.Username,
			SponsorCode: req.SponsorCode,
		})
		return txErr
	})
	if err != nil {
		return domain.RegisterNodeResult{}, err
	}

	s.obsMetrics.RecordRegistration(ctx, result.Placement.Reason)
	if s.auditSvc != nil {
		metadata := map[string]any{
			"user_id":  user.ID.String(),
			"position": string(result.Node.Position),
			"reason":   result.Placement.Reason,
		}
		if result.Node.SponsorID != nil {
			metadata["sponsor_id"] = result.Node.SponsorID.String()
		}
		if err := s.auditSvc.AuditLog(ctx, auditdomain.ActionNodeRegistered, "node", result.Node.ID.String(), metadata); err != nil {
			s.log.Warn("failed to write registration audit log", zap.Error(err))
		}
	}
	return result, nil
}

// RegisterNode creates the node for a user inside tx. Placement is best
// effort: when no slot can be computed the node is created unplaced.
func (s *Service) RegisterNode(ctx context.Context, tx *gorm.DB, in domain.RegisterNodeInput) (domain.RegisterNodeResult, error) {
	if in.UserID == 0 {
		return domain.RegisterNodeResult{}, domain.ErrInvalidUserID
	}
	existing, err := s.repo.FindByUserID(ctx, tx, in.UserID)
	if err != nil {
		return domain.RegisterNodeResult{}, err
	}
	if existing != nil {
		return domain.RegisterNodeResult{}, domain.ErrNodeAlreadyExists
	}

	var sponsor *domain.Node
	if code := strings.TrimSpace(in.SponsorCode); code != "" {
		sponsor, err = s.repo.FindByReferralCode(ctx, tx, code)
		if err != nil {
			return domain.RegisterNodeResult{}, err
		}
		if sponsor == nil {
			return domain.RegisterNodeResult{}, domain.ErrSponsorNotFound
		}
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		placement := s.place(ctx, tx, sponsor)
		now := s.clock.Now()
		id := s.genID.Generate()
		node := domain.Node{
			ID:               id,
			UserID:           in.UserID,
			ParentID:         placement.ParentID,
			Position:         placement.Position,
			Status:           domain.NodeStatusInactive,
			AvailableBalance: decimal.Zero,
			Level:            placement.Level,
			ReferralCode:     referralCode(in.Username, id),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if sponsor != nil {
			sponsorID := sponsor.ID
			node.SponsorID = &sponsorID
		}

		inserted, err := s.repo.Insert(ctx, tx, &node)
		if err != nil {
			return domain.RegisterNodeResult{}, err
		}
		if inserted {
			return domain.RegisterNodeResult{Node: node, Placement: placement}, nil
		}

		existing, err := s.repo.FindByUserID(ctx, tx, in.UserID)
		if err != nil {
			return domain.RegisterNodeResult{}, err
		}
		if existing != nil {
			return domain.RegisterNodeResult{}, domain.ErrNodeAlreadyExists
		}
		s.log.Warn("placement slot taken concurrently, retrying",
			zap.Int("attempt", attempt),
			zap.String("user_id", in.UserID.String()),
		)
	}
	return domain.RegisterNodeResult{}, domain.ErrPlacementConflict
}

// place never fails: optimization errors fall back to breadth-first search,
// and a failed search leaves the node at a root slot.
func (s *Service) place(ctx context.Context, tx *gorm.DB, sponsor *domain.Node) domain.Placement {
	if sponsor == nil {
		return domain.Placement{Position: s.mode.DefaultPosition(), Level: 1, Reason: domain.ReasonRoot}
	}

	placement, err := s.OptimizePlacement(ctx, tx, sponsor.ID)
	if err == nil {
		return placement
	}
	s.logPlacementError("placement optimization failed, using breadth-first search", sponsor.ID, err)

	placement, err = s.FindPosition(ctx, tx, sponsor.ID)
	if err == nil {
		return placement
	}
	s.logPlacementError("breadth-first placement failed, creating unplaced node", sponsor.ID, err)
	return domain.Placement{Position: s.mode.DefaultPosition(), Level: 1, Reason: domain.ReasonFallback}
}

func (s *Service) logPlacementError(msg string, sponsorID snowflake.ID, err error) {
	fields := []zap.Field{zap.String("sponsor_id", sponsorID.String()), zap.Error(err)}
	if errors.Is(err, domain.ErrCorruptNetwork) {
		s.log.Error(msg, fields...)
		return
	}
	s.log.Warn(msg, fields...)
}

func (s *Service) PreviewPlacement(ctx context.Context, sponsorID string) (domain.Placement, error) {
	id, err := parseID(sponsorID, domain.ErrInvalidNodeID)
	if err != nil {
		return domain.Placement{}, err
	}
	sponsor, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Placement{}, err
	}
	if sponsor == nil {
		return domain.Placement{}, domain.ErrSponsorNotFound
	}
	return s.place(ctx, s.db, sponsor), nil
}

func (s *Service) GetNode(ctx context.Context, id string) (domain.Node, error) {
	nodeID, err := parseID(id, domain.ErrInvalidNodeID)
	if err != nil {
		return domain.Node{}, err
	}
	node, err := s.repo.FindByID(ctx, s.db, nodeID)
	if err != nil {
		return domain.Node{}, err
	}
	if node == nil {
		return domain.Node{}, domain.ErrNodeNotFound
	}
	return *node, nil
}

func (s *Service) GetNodeByUserID(ctx context.Context, userID snowflake.ID) (domain.Node, error) {
	node, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Node{}, err
	}
	if node == nil {
		return domain.Node{}, domain.ErrNodeNotFound
	}
	return *node, nil
}

func (s *Service) Activate(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	changed, err := s.repo.UpdateStatus(ctx, tx, id, domain.NodeStatusActive, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.log.Info("node activated", zap.String("node_id", id.String()))
	}
	return nil
}

// referralCode joins the username slug with the tail of the node id in
// base36, e.g. "amara-n-9k2x1z".
func referralCode(username string, id snowflake.ID) string {
	base := slug.Make(username)
	if len(base) > 24 {
		base = strings.Trim(base[:24], "-")
	}
	if base == "" {
		base = "node"
	}
	suffix := strings.ToLower(id.Base36())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return base + "-" + suffix
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}
