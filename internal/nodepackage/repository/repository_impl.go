package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByNode(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*domain.NodePackage, error) {
	var row domain.NodePackage
	err := db.WithContext(ctx).Raw(
		`SELECT id, node_id, package_id, status, activated_at, expires_at, created_at, updated_at
		 FROM node_packages
		 WHERE node_id = ?`,
		nodeID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) UpsertPending(ctx context.Context, db *gorm.DB, row *domain.NodePackage) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO node_packages (id, node_id, package_id, status, activated_at, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, NULL, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
			package_id = excluded.package_id,
			status = excluded.status,
			activated_at = NULL,
			expires_at = NULL,
			updated_at = excluded.updated_at
		 WHERE node_packages.status <> ?`,
		row.ID,
		row.NodeID,
		row.PackageID,
		domain.StatusPending,
		row.CreatedAt,
		row.UpdatedAt,
		domain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpsertActive(ctx context.Context, db *gorm.DB, row *domain.NodePackage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO node_packages (id, node_id, package_id, status, activated_at, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
			package_id = excluded.package_id,
			status = excluded.status,
			activated_at = excluded.activated_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		row.ID,
		row.NodeID,
		row.PackageID,
		domain.StatusActive,
		row.ActivatedAt,
		row.ExpiresAt,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) CancelPending(ctx context.Context, db *gorm.DB, nodeID, packageID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE node_packages SET status = ?, updated_at = ?
		 WHERE node_id = ? AND package_id = ? AND status = ?`,
		domain.StatusCancelled, at, nodeID, packageID, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Table("node_packages").
		Where("status = ? AND expires_at < ?", domain.StatusActive, now).
		Order("expires_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) Expire(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE node_packages SET status = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND expires_at < ?`,
		domain.StatusExpired, now, ids, domain.StatusActive, now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
