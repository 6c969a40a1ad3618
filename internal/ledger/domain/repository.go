package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*NodeBalance, error)
	// LockNodeBalance reads the balance row with a row lock held until the
	// transaction ends.
	LockNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (*NodeBalance, error)
	UpdateNodeBalance(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, balance decimal.Decimal, at time.Time) error

	Insert(ctx context.Context, db *gorm.DB, statement *Statement) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Statement, error)
	FindByReference(ctx context.Context, db *gorm.DB, refType ReferenceType, refID snowflake.ID, statementType StatementType) (*Statement, error)
	// TransitionStatus moves a statement out of one of the from states and
	// reports whether this call performed the transition.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []StatementStatus, to StatementStatus, balanceAfter decimal.Decimal, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Statement, error)

	SumCompleted(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (decimal.Decimal, error)
	SumWithdrawals(ctx context.Context, db *gorm.DB, nodeID snowflake.ID, since time.Time) (decimal.Decimal, error)
	ActivePackageLevel(ctx context.Context, db *gorm.DB, nodeID snowflake.ID) (int, error)
}
