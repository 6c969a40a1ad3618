package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, duration_days, daily_reward_multiplier, level, is_active, created_at, updated_at
		 FROM packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]*domain.Package, error) {
	var items []*domain.Package
	err := db.WithContext(ctx).
		Model(&domain.Package{}).
		Where("is_active = ?", true).
		Order("level asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
