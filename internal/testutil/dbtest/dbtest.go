// Package dbtest opens isolated in-memory sqlite databases carrying the
// full schema and seeds rows with raw SQL.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/migration"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Open returns a fresh database. A single connection keeps every statement,
// including those inside transactions, on the same in-memory instance.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySQLiteSchema(context.Background(), db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

// IDGen returns a snowflake node for test fixtures.
func IDGen(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

// Now is a fixed whole-second UTC instant used by fixtures.
func Now() time.Time {
	return time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
}

func SeedUser(t testing.TB, db *gorm.DB, id snowflake.ID, username string) {
	t.Helper()
	now := Now()
	if err := db.Exec(
		`INSERT INTO users (id, username, email, phone, verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, username, username+"@example.com", "+256700000000", false, now, now,
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func SeedPackage(t testing.TB, db *gorm.DB, id snowflake.ID, level int, price string, durationDays int) {
	t.Helper()
	now := Now()
	if err := db.Exec(
		`INSERT INTO packages (id, name, price, duration_days, level, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fmt.Sprintf("Tier %d", level), decimal.RequireFromString(price), durationDays, level, true, now, now,
	).Error; err != nil {
		t.Fatalf("seed package: %v", err)
	}
}

// NodeFixture describes a node row. Nil sponsor or parent ids are stored as NULL.
type NodeFixture struct {
	ID        snowflake.ID
	UserID    snowflake.ID
	SponsorID *snowflake.ID
	ParentID  *snowflake.ID
	Position  string
	Status    string
	Balance   string
	Level     int
}

// SeedNode inserts the node and its owning user.
func SeedNode(t testing.TB, db *gorm.DB, n NodeFixture) {
	t.Helper()
	if n.UserID == 0 {
		n.UserID = n.ID + 1_000_000
	}
	if n.Position == "" {
		n.Position = "ONE"
	}
	if n.Status == "" {
		n.Status = "ACTIVE"
	}
	if n.Balance == "" {
		n.Balance = "0"
	}
	if n.Level == 0 {
		n.Level = 1
	}
	SeedUser(t, db, n.UserID, fmt.Sprintf("user-%d", n.UserID))
	now := Now()
	if err := db.Exec(
		`INSERT INTO nodes (id, user_id, sponsor_id, parent_id, position, status, available_balance, level, referral_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.SponsorID, n.ParentID, n.Position, n.Status,
		decimal.RequireFromString(n.Balance), n.Level, fmt.Sprintf("ref-%d", n.ID), now, now,
	).Error; err != nil {
		t.Fatalf("seed node: %v", err)
	}
}

// Ref returns a pointer to id for NodeFixture links.
func Ref(id snowflake.ID) *snowflake.ID {
	return &id
}

// Count runs a COUNT(*) query and returns the result.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// Balance reads a node's cached available balance.
func Balance(t testing.TB, db *gorm.DB, nodeID snowflake.ID) decimal.Decimal {
	t.Helper()
	var row struct {
		AvailableBalance decimal.Decimal
	}
	if err := db.Raw(`SELECT available_balance FROM nodes WHERE id = ?`, nodeID).Scan(&row).Error; err != nil {
		t.Fatalf("balance: %v", err)
	}
	return row.AvailableBalance
}
