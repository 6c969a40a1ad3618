package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/commission/domain"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	notificationdomain "github.com/smallbiznis/sponsornet/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Rewards   *config.RewardConfigHolder
	Clock     clock.Clock
	Repo      domain.Repository
	Nodes     networkdomain.Repository
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	rewards   *config.RewardConfigHolder
	clock     clock.Clock
	repo      domain.Repository
	nodes     networkdomain.Repository
	ledgerSvc ledgerdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("commission.service"),
		genID:     p.GenID,
		rewards:   p.Rewards,
		clock:     p.Clock,
		repo:      p.Repo,
		nodes:     p.Nodes,
		ledgerSvc: p.LedgerSvc,
	}
}

// Distribute walks the sponsor chain upward and pays one configured rate per
// level. The walk ends at the first missing or inactive sponsor, so an
// inactive upline truncates the chain instead of being skipped over.
func (s *Service) Distribute(ctx context.Context, tx *gorm.DB, in domain.Input) (domain.Result, error) {
	result := domain.Result{Total: decimal.Zero}
	if in.NodeID == 0 || in.PackageID == 0 || !in.Amount.IsPositive() {
		return result, domain.ErrInvalidCommissionInput
	}
	source, err := s.nodes.FindByID(ctx, tx, in.NodeID)
	if err != nil {
		return result, err
	}
	if source == nil {
		return result, domain.ErrInvalidCommissionInput
	}

	rates := s.rewards.Get().Rates()
	visited := map[snowflake.ID]struct{}{source.ID: {}}
	current := source

	for _, rate := range rates {
		if current.SponsorID == nil {
			break
		}
		sponsor, err := s.nodes.FindActiveByID(ctx, tx, *current.SponsorID)
		if err != nil {
			return result, err
		}
		if sponsor == nil {
			s.log.Debug("sponsor chain truncated",
				zap.String("source_node_id", source.ID.String()),
				zap.String("sponsor_id", current.SponsorID.String()),
				zap.Int("level", rate.Level),
			)
			break
		}
		if _, seen := visited[sponsor.ID]; seen {
			return result, networkdomain.ErrCorruptNetwork
		}
		visited[sponsor.ID] = struct{}{}
		current = sponsor

		pct := decimal.NewFromFloat(rate.Rate)
		amount := in.Amount.Mul(pct).Div(hundred).Round(2)
		if !amount.IsPositive() {
			continue
		}
		if result.Total.Add(amount).GreaterThan(in.Amount) {
			s.log.Warn("commission cap reached",
				zap.String("source_node_id", source.ID.String()),
				zap.Int("level", rate.Level),
				zap.String("distributed", result.Total.StringFixed(2)),
			)
			break
		}

		dist, err := s.payLevel(ctx, tx, source, sponsor, in, rate.Level, pct, amount)
		if err != nil {
			return domain.Result{Total: decimal.Zero}, fmt.Errorf("commission level %d: %w", rate.Level, err)
		}
		result.Distributions = append(result.Distributions, dist)
		result.Total = result.Total.Add(amount)
		result.Notifications = append(result.Notifications,
			notificationdomain.Message{
				UserID: sponsor.UserID,
				Title:  "Commission received",
				Body:   fmt.Sprintf("You earned a level %d commission of %s.", rate.Level, amount.StringFixed(2)),
				Type:   notificationdomain.TypeCommission,
			},
			notificationdomain.Message{
				Title: "Commission paid",
				Body:  fmt.Sprintf("Level %d commission of %s paid to node %s.", rate.Level, amount.StringFixed(2), sponsor.ID),
				Type:  notificationdomain.TypeAdminAlert,
			},
		)
	}
	return result, nil
}

func (s *Service) payLevel(
	ctx context.Context,
	tx *gorm.DB,
	source *networkdomain.Node,
	sponsor *networkdomain.Node,
	in domain.Input,
	level int,
	rate decimal.Decimal,
	amount decimal.Decimal,
) (domain.Distribution, error) {
	statement, err := s.ledgerSvc.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
		NodeID:        sponsor.ID,
		Amount:        amount,
		Type:          ledgerdomain.StatementTypeCommission,
		Status:        ledgerdomain.StatementStatusCompleted,
		ReferenceType: ledgerdomain.ReferenceTypePackage,
		ReferenceID:   in.PackageID,
		Description:   fmt.Sprintf("level %d commission from node %s", level, source.ID),
	})
	if err != nil {
		return domain.Distribution{}, err
	}

	commission := &domain.Commission{
		ID:              s.genID.Generate(),
		RecipientUserID: sponsor.UserID,
		RecipientNodeID: sponsor.ID,
		SourceUserID:    source.UserID,
		SourceNodeID:    source.ID,
		PackageID:       in.PackageID,
		PaymentID:       in.PaymentID,
		StatementID:     statement.ID,
		Level:           level,
		Type:            domain.TypeLevel,
		Amount:          amount,
		Status:          domain.StatusProcessed,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, tx, commission); err != nil {
		return domain.Distribution{}, err
	}

	return domain.Distribution{
		Level:           level,
		Rate:            rate,
		Amount:          amount,
		RecipientNodeID: sponsor.ID,
		RecipientUserID: sponsor.UserID,
		CommissionID:    commission.ID,
		StatementID:     statement.ID,
	}, nil
}

func (s *Service) ListByPayment(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) ([]domain.Commission, error) {
	return s.repo.ListByPayment(ctx, tx, paymentID)
}
