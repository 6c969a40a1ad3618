package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	MarkVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
