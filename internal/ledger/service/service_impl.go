package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	"github.com/smallbiznis/sponsornet/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Rewards    *config.RewardConfigHolder
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	rewards    *config.RewardConfigHolder
	clock      clock.Clock
	repo       ledgerdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		rewards:    p.Rewards,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req ledgerdomain.CreateStatementRequest) (*ledgerdomain.Statement, error) {
	if req.NodeID == 0 {
		return nil, ledgerdomain.ErrInvalidNodeID
	}
	if !req.Amount.IsPositive() {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return nil, ledgerdomain.ErrInvalidStatementType
	}
	if req.ReferenceType == "" || req.ReferenceID == 0 {
		return nil, ledgerdomain.ErrInvalidReference
	}
	status := req.Status
	if status == "" {
		status = ledgerdomain.StatementStatusCompleted
	}
	switch status {
	case ledgerdomain.StatementStatusPending, ledgerdomain.StatementStatusCompleted,
		ledgerdomain.StatementStatusScheduled:
	default:
		return nil, ledgerdomain.ErrInvalidStatementStatus
	}

	amount := req.Amount.Round(2)
	now := s.clock.Now()

	var balanceAfter decimal.Decimal
	if status == ledgerdomain.StatementStatusCompleted {
		updated, err := s.applyBalance(ctx, tx, req.NodeID, req.Type.Signed(amount), now)
		if err != nil {
			return nil, err
		}
		balanceAfter = updated
	} else {
		current, err := s.repo.FindNodeBalance(ctx, tx, req.NodeID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ledgerdomain.ErrNodeNotFound
		}
		balanceAfter = current.AvailableBalance
	}

	statement := &ledgerdomain.Statement{
		ID:            s.genID.Generate(),
		NodeID:        req.NodeID,
		Amount:        amount,
		Type:          req.Type,
		Status:        status,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		BalanceAfter:  balanceAfter,
		Description:   strings.TrimSpace(req.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, statement); err != nil {
		return nil, err
	}
	return statement, nil
}

// applyBalance locks the node row and writes the new cached balance.
func (s *Service) applyBalance(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID, delta decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	current, err := s.repo.LockNodeBalance(ctx, tx, nodeID)
	if err != nil {
		return decimal.Zero, err
	}
	if current == nil {
		return decimal.Zero, ledgerdomain.ErrNodeNotFound
	}
	updated := current.AvailableBalance.Add(delta).Round(2)
	if updated.IsNegative() {
		return decimal.Zero, ledgerdomain.ErrInsufficientBalance
	}
	if err := s.repo.UpdateNodeBalance(ctx, tx, nodeID, updated, now); err != nil {
		return decimal.Zero, err
	}
	return updated, nil
}

// CompleteStatement settles a pending or scheduled statement and applies it
// to the balance. It reports false when the statement was already settled.
func (s *Service) CompleteStatement(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error) {
	statement, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if statement == nil {
		return false, ledgerdomain.ErrStatementNotFound
	}
	if statement.Status != ledgerdomain.StatementStatusPending && statement.Status != ledgerdomain.StatementStatusScheduled {
		return false, nil
	}

	now := s.clock.Now()
	balanceAfter, err := s.applyBalance(ctx, tx, statement.NodeID, statement.Type.Signed(statement.Amount), now)
	if err != nil {
		return false, err
	}
	changed, err := s.repo.TransitionStatus(ctx, tx, id,
		[]ledgerdomain.StatementStatus{ledgerdomain.StatementStatusPending, ledgerdomain.StatementStatusScheduled},
		ledgerdomain.StatementStatusCompleted,
		balanceAfter,
		now,
	)
	if err != nil {
		return false, err
	}
	if !changed {
		// Lost the race after the balance moved; the caller's tx must roll back.
		return false, ledgerdomain.ErrInvalidStatementStatus
	}
	s.obsMetrics.RecordStatement(ctx, string(statement.Type), string(statement.ReferenceType))
	return true, nil
}

func (s *Service) FailStatement(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error) {
	statement, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if statement == nil {
		return false, ledgerdomain.ErrStatementNotFound
	}
	return s.repo.TransitionStatus(ctx, tx, id,
		[]ledgerdomain.StatementStatus{ledgerdomain.StatementStatusPending, ledgerdomain.StatementStatusScheduled},
		ledgerdomain.StatementStatusFailed,
		statement.BalanceAfter,
		s.clock.Now(),
	)
}

func (s *Service) FindByReference(ctx context.Context, tx *gorm.DB, refType ledgerdomain.ReferenceType, refID snowflake.ID, statementType ledgerdomain.StatementType) (*ledgerdomain.Statement, error) {
	return s.repo.FindByReference(ctx, tx, refType, refID, statementType)
}

// ComputedBalance recomputes the balance from completed statements.
func (s *Service) ComputedBalance(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID) (decimal.Decimal, error) {
	return s.repo.SumCompleted(ctx, tx, nodeID)
}

func (s *Service) GetBalance(ctx context.Context, nodeID string) (ledgerdomain.Balance, error) {
	id, err := parseID(nodeID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	current, err := s.repo.FindNodeBalance(ctx, s.db, id)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	if current == nil {
		return ledgerdomain.Balance{}, ledgerdomain.ErrNodeNotFound
	}

	level, limits, err := s.withdrawalLimits(ctx, s.db, id)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	return ledgerdomain.Balance{
		NodeID:           id,
		Available:        current.AvailableBalance,
		PackageLevel:     level,
		WithdrawalLimits: limits,
	}, nil
}

// withdrawalLimits returns the remaining allowance per window. Nodes without
// an active package have no allowance.
func (s *Service) withdrawalLimits(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (int, ledgerdomain.WithdrawalLimits, error) {
	zero := ledgerdomain.WithdrawalLimits{Daily: decimal.Zero, Weekly: decimal.Zero, Monthly: decimal.Zero}

	level, err := s.repo.ActivePackageLevel(ctx, db, nodeID)
	if err != nil {
		return 0, zero, err
	}
	tier, ok := s.rewards.Get().LimitFor(level)
	if level == 0 || !ok {
		return level, zero, nil
	}

	day, week, month := windowStarts(s.clock.Now())
	remaining := func(limit float64, since time.Time) (decimal.Decimal, error) {
		used, err := s.repo.SumWithdrawals(ctx, db, nodeID, since)
		if err != nil {
			return decimal.Zero, err
		}
		left := decimal.NewFromFloat(limit).Sub(used).Round(2)
		if left.IsNegative() {
			return decimal.Zero, nil
		}
		return left, nil
	}

	var limits ledgerdomain.WithdrawalLimits
	if limits.Daily, err = remaining(tier.Daily, day); err != nil {
		return 0, zero, err
	}
	if limits.Weekly, err = remaining(tier.Weekly, week); err != nil {
		return 0, zero, err
	}
	if limits.Monthly, err = remaining(tier.Monthly, month); err != nil {
		return 0, zero, err
	}
	return level, limits, nil
}

// windowStarts returns the UTC start of the current day, ISO week and month.
func windowStarts(now time.Time) (time.Time, time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	week := day.AddDate(0, 0, -offset)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, week, month
}

func (s *Service) Withdraw(ctx context.Context, req ledgerdomain.WithdrawRequest) (ledgerdomain.Statement, error) {
	nodeID, err := parseID(req.NodeID)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return ledgerdomain.Statement{}, ledgerdomain.ErrInvalidAmount
	}
	amount = amount.Round(2)

	var statement *ledgerdomain.Statement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize concurrent withdrawals of the same node before reading
		// the used allowance.
		locked, err := s.repo.LockNodeBalance(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ledgerdomain.ErrNodeNotFound
		}
		if locked.AvailableBalance.LessThan(amount) {
			return ledgerdomain.ErrInsufficientBalance
		}
		_, limits, err := s.withdrawalLimits(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(limits.Min()) {
			return ledgerdomain.ErrWithdrawalLimitExceeded
		}

		description := req.Description
		if strings.TrimSpace(description) == "" {
			description = "withdrawal"
		}
		statement, err = s.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
			NodeID:        nodeID,
			Amount:        amount,
			Type:          ledgerdomain.StatementTypeDebit,
			Status:        ledgerdomain.StatementStatusCompleted,
			ReferenceType: ledgerdomain.ReferenceTypeWithdrawal,
			ReferenceID:   s.genID.Generate(),
			Description:   description,
		})
		return err
	})
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	s.obsMetrics.RecordStatement(ctx, string(statement.Type), string(statement.ReferenceType))
	if s.auditSvc != nil {
		metadata := map[string]any{
			"node_id":       nodeID.String(),
			"amount":        statement.Amount.StringFixed(2),
			"balance_after": statement.BalanceAfter.StringFixed(2),
		}
		if err := s.auditSvc.AuditLog(ctx, auditdomain.ActionWithdrawal, "node_statement", statement.ID.String(), metadata); err != nil {
			s.log.Warn("failed to write withdrawal audit log", zap.Error(err))
		}
	}
	return *statement, nil
}

func (s *Service) ListStatements(ctx context.Context, req ledgerdomain.ListStatementsRequest) (ledgerdomain.ListStatementsResponse, error) {
	nodeID, err := parseID(req.NodeID)
	if err != nil {
		return ledgerdomain.ListStatementsResponse{}, err
	}
	statementType := ledgerdomain.StatementType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if statementType != "" && !statementType.Valid() {
		return ledgerdomain.ListStatementsResponse{}, ledgerdomain.ErrInvalidStatementType
	}

	var cursor *ledgerdomain.StatementCursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return ledgerdomain.ListStatementsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return ledgerdomain.ListStatementsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return ledgerdomain.ListStatementsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		cursor = &ledgerdomain.StatementCursor{ID: id, CreatedAt: createdAt.UTC()}
	}

	limit := req.Pagination.Size()
	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
		NodeID: nodeID,
		Type:   statementType,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return ledgerdomain.ListStatementsResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, limit, func(item *ledgerdomain.Statement) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	statements := make([]ledgerdomain.Statement, 0, len(items))
	for _, item := range items {
		statements = append(statements, *item)
	}
	resp := ledgerdomain.ListStatementsResponse{Statements: statements}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, ledgerdomain.ErrInvalidNodeID
	}
	return id, nil
}
