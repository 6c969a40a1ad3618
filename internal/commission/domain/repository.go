package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, commission *Commission) error
	ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]Commission, error)
}
