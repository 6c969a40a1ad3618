// Package testing moves rows backwards in time so scheduler jobs can be
// exercised without waiting for real expiry windows.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TimeAccelerator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTimeAccelerator(db *gorm.DB, now func() time.Time) *TimeAccelerator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TimeAccelerator{db: db, now: now}
}

// ExpirePackage moves a node's package expiry one minute into the past.
func (ta *TimeAccelerator) ExpirePackage(ctx context.Context, nodeID snowflake.ID) error {
	now := ta.now()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE node_packages
		 SET expires_at = ?, updated_at = ?
		 WHERE node_id = ?`,
		now.Add(-time.Minute),
		now,
		nodeID,
	).Error
}

// AgePayment backdates a payment's creation by age.
func (ta *TimeAccelerator) AgePayment(ctx context.Context, paymentID snowflake.ID, age time.Duration) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE node_payments SET created_at = ? WHERE id = ?`,
		ta.now().Add(-age),
		paymentID,
	).Error
}

// AgeOpenPayments backdates every PENDING or PROCESSING payment and returns
// how many rows moved.
func (ta *TimeAccelerator) AgeOpenPayments(ctx context.Context, age time.Duration) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE node_payments SET created_at = ? WHERE status IN ?`,
		ta.now().Add(-age),
		[]string{"PENDING", "PROCESSING"},
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
