package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByNode(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*NodePackage, error)
	// UpsertPending records a pending purchase unless the node currently
	// holds an active package.
	UpsertPending(ctx context.Context, db *gorm.DB, row *NodePackage) (bool, error)
	UpsertActive(ctx context.Context, db *gorm.DB, row *NodePackage) error
	CancelPending(ctx context.Context, db *gorm.DB, nodeID, packageID snowflake.ID, at time.Time) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	Expire(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
}
