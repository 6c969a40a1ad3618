package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/commission/domain"
	"gorm.io/gorm"
)

const commissionColumns = `id, recipient_user_id, recipient_node_id, source_user_id, source_node_id,
	package_id, payment_id, statement_id, level, type, amount, status, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Commission) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commissions (`+commissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.RecipientUserID,
		c.RecipientNodeID,
		c.SourceUserID,
		c.SourceNodeID,
		c.PackageID,
		c.PaymentID,
		c.StatementID,
		c.Level,
		c.Type,
		c.Amount,
		c.Status,
		c.CreatedAt,
	).Error
}

func (r *repo) ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.Commission, error) {
	var rows []domain.Commission
	err := db.WithContext(ctx).Raw(
		`SELECT `+commissionColumns+` FROM commissions
		 WHERE payment_id = ?
		 ORDER BY level`,
		paymentID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
