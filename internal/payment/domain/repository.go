package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByExternalTxID(ctx context.Context, db *gorm.DB, externalTxID string) (*Payment, error)
	// Transition moves the payment to status when its current status is one
	// of from. It reports false when another writer got there first.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, reason *string, at time.Time) (bool, error)
	CountSuccessful(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, excludeID snowflake.ID) (int64, error)
	ListStale(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]snowflake.ID, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
