package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Package is a purchasable tier. A higher Level is a higher tier.
type Package struct {
	ID                    snowflake.ID     `gorm:"primaryKey" json:"id"`
	Name                  string           `gorm:"type:text;not null" json:"name"`
	Price                 decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"price"`
	DurationDays          int              `gorm:"not null" json:"duration_days"`
	DailyRewardMultiplier *decimal.Decimal `gorm:"type:numeric(10,4)" json:"daily_reward_multiplier,omitempty"`
	Level                 int              `gorm:"not null" json:"level"`
	IsActive              bool             `gorm:"not null" json:"is_active"`
	CreatedAt             time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"not null" json:"updated_at"`
}

func (Package) TableName() string { return "packages" }

// Duration is the activation window of the package.
func (p Package) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}
