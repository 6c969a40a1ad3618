package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/network/domain"
	"gorm.io/gorm"
)

const nodeColumns = `id, user_id, sponsor_id, parent_id, position, status,
	available_balance, level, referral_code, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
}

func (r *repo) FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM nodes WHERE id = ? AND status = ?`, id, domain.NodeStatusActive)
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM nodes WHERE user_id = ?`, userID)
}

func (r *repo) FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Node, error) {
	return r.findOne(ctx, db, `SELECT `+nodeColumns+` FROM nodes WHERE referral_code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Node, error) {
	var node domain.Node
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&node).Error; err != nil {
		return nil, err
	}
	if node.ID == 0 {
		return nil, nil
	}
	return &node, nil
}

func (r *repo) ListChildren(ctx context.Context, db *gorm.DB, parentIDs []snowflake.ID) ([]domain.ChildSlot, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var rows []domain.ChildSlot
	err := db.WithContext(ctx).Raw(
		`SELECT id, parent_id, position FROM nodes
		 WHERE parent_id IN ?
		 ORDER BY parent_id, id`,
		parentIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, node *domain.Node) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO nodes (`+nodeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		node.ID,
		node.UserID,
		node.SponsorID,
		node.ParentID,
		node.Position,
		node.Status,
		node.AvailableBalance,
		node.Level,
		node.ReferralCode,
		node.CreatedAt,
		node.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.NodeStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE nodes SET status = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		status, at, id, status,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SumCompletedCommissions(ctx context.Context, db *gorm.DB, nodeIDs []snowflake.ID, since time.Time) (decimal.Decimal, error) {
	if len(nodeIDs) == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total FROM node_statements
		 WHERE node_id IN ? AND type = ? AND status = ? AND created_at >= ?`,
		nodeIDs, "COMMISSION", "COMPLETED", since,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *repo) SumActivePackageValue(ctx context.Context, db *gorm.DB, nodeIDs []snowflake.ID) (decimal.Decimal, error) {
	if len(nodeIDs) == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(p.price), 0) AS total
		 FROM node_packages np
		 JOIN packages p ON p.id = np.package_id
		 WHERE np.node_id IN ? AND np.status = ?`,
		nodeIDs, "ACTIVE",
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}
