package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const statementColumns = `id, node_id, amount, type, status, reference_type, reference_id,
	balance_after, description, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*domain.NodeBalance, error) {
	return r.nodeBalance(db.WithContext(ctx), nodeID)
}

func (r *repo) LockNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*domain.NodeBalance, error) {
	return r.nodeBalance(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), nodeID)
}

func (r *repo) nodeBalance(db *gorm.DB, nodeID snowflake.ID) (*domain.NodeBalance, error) {
	var row domain.NodeBalance
	err := db.Table("nodes").
		Select("id, available_balance").
		Where("id = ?", nodeID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) UpdateNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, balance decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE nodes SET available_balance = ?, updated_at = ? WHERE id = ?`,
		balance, at, nodeID,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Statement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO node_statements (`+statementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.NodeID,
		s.Amount,
		s.Type,
		s.Status,
		s.ReferenceType,
		s.ReferenceID,
		s.BalanceAfter,
		s.Description,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Statement, error) {
	return r.findOne(ctx, db, `SELECT `+statementColumns+` FROM node_statements WHERE id = ?`, id)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, refType domain.ReferenceType, refID snowflake.ID, statementType domain.StatementType) (*domain.Statement, error) {
	return r.findOne(ctx, db,
		`SELECT `+statementColumns+` FROM node_statements
		 WHERE reference_type = ? AND reference_id = ? AND type = ?
		 ORDER BY id LIMIT 1`,
		refType, refID, statementType,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Statement, error) {
	var s domain.Statement
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.StatementStatus, to domain.StatementStatus, balanceAfter decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE node_statements
		 SET status = ?, balance_after = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to, balanceAfter, at, id, from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Statement, error) {
	var rows []*domain.Statement
	stmt := db.WithContext(ctx).Model(&domain.Statement{}).Where("node_id = ?", filter.NodeID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SumCompleted(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (decimal.Decimal, error) {
	return r.sum(ctx, db,
		`SELECT COALESCE(SUM(CASE WHEN type = ? THEN -amount ELSE amount END), 0) AS total
		 FROM node_statements
		 WHERE node_id = ? AND status = ?`,
		domain.StatementTypeDebit, nodeID, domain.StatementStatusCompleted,
	)
}

func (r *repo) SumWithdrawals(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, since time.Time) (decimal.Decimal, error) {
	return r.sum(ctx, db,
		`SELECT COALESCE(SUM(amount), 0) AS total
		 FROM node_statements
		 WHERE node_id = ? AND type = ? AND status = ? AND reference_type = ? AND created_at >= ?`,
		nodeID, domain.StatementTypeDebit, domain.StatementStatusCompleted, domain.ReferenceTypeWithdrawal, since,
	)
}

func (r *repo) sum(ctx context.Context, db *gorm.DB, query string, args ...any) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *repo) ActivePackageLevel(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (int, error) {
	var row struct {
		Level int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT p.level AS level
		 FROM node_packages np
		 JOIN packages p ON p.id = np.package_id
		 WHERE np.node_id = ? AND np.status = ?`,
		nodeID, "ACTIVE",
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Level, nil
}
