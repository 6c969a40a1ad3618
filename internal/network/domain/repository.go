package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Node, error)
	// FindActiveByID returns nil when the node is missing or not ACTIVE.
	FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Node, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Node, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*Node, error)
	ListChildren(ctx context.Context, db *gorm.DB, parentIDs []snowflake.ID) ([]ChildSlot, error)
	// Insert reports false when a unique constraint (slot, user or
	// referral code) already holds the row.
	Insert(ctx context.Context, db *gorm.DB, node *Node) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status NodeStatus, at time.Time) (bool, error)
	SumCompletedCommissions(ctx context.Context, db *gorm.DB, nodeIDs []snowflake.ID, since time.Time) (decimal.Decimal, error)
	SumActivePackageValue(ctx context.Context, db *gorm.DB, nodeIDs []snowflake.ID) (decimal.Decimal, error)
}
