package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type defaultPackage struct {
	name         string
	price        decimal.Decimal
	durationDays int
	multiplier   decimal.Decimal
	level        int
}

var defaultPackages = []defaultPackage{
	{name: "Starter", price: decimal.NewFromInt(100000), durationDays: 365, multiplier: decimal.RequireFromString("0.0100"), level: 1},
	{name: "Growth", price: decimal.NewFromInt(500000), durationDays: 365, multiplier: decimal.RequireFromString("0.0125"), level: 2},
	{name: "Premium", price: decimal.NewFromInt(1000000), durationDays: 365, multiplier: decimal.RequireFromString("0.0150"), level: 3},
}

// EnsureDefaultPackages inserts the package tiers that are missing by level
// and returns how many rows were created.
func EnsureDefaultPackages(ctx context.Context, db *gorm.DB, genID *snowflake.Node) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if genID == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, pkg := range defaultPackages {
			res := tx.WithContext(ctx).Exec(
				`INSERT INTO packages (
					id, name, price, duration_days, daily_reward_multiplier, level, is_active, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (level) DO NOTHING`,
				genID.Generate(),
				pkg.name,
				pkg.price,
				pkg.durationDays,
				pkg.multiplier,
				pkg.level,
				true,
				now,
				now,
			)
			if res.Error != nil {
				return res.Error
			}
			created += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
