package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/pkg/db/pagination"
	"gorm.io/gorm"
)

// CreateStatementRequest describes a ledger write. Amount is always a
// positive magnitude; the type decides the direction.
type CreateStatementRequest struct {
	NodeID        snowflake.ID
	Amount        decimal.Decimal
	Type          StatementType
	Status        StatementStatus
	ReferenceType ReferenceType
	ReferenceID   snowflake.ID
	Description   string
}

type WithdrawRequest struct {
	NodeID      string `json:"-"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type ListStatementsRequest struct {
	pagination.Pagination
	NodeID string `json:"-"`
	Type   string `form:"type"`
}

type ListStatementsResponse struct {
	pagination.PageInfo
	Statements []Statement `json:"statements"`
}

// Service owns node balances. Methods taking a tx run inside the caller's
// transaction and never open their own.
type Service interface {
	// Create writes a statement. Completed statements update the cached
	// balance under a row lock; other statuses only snapshot it.
	Create(ctx context.Context, tx *gorm.DB, req CreateStatementRequest) (*Statement, error)
	CompleteStatement(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error)
	FailStatement(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error)
	FindByReference(ctx context.Context, tx *gorm.DB, refType ReferenceType, refID snowflake.ID, statementType StatementType) (*Statement, error)
	ComputedBalance(ctx context.Context, tx *gorm.DB, nodeID snowflake.ID) (decimal.Decimal, error)

	GetBalance(ctx context.Context, nodeID string) (Balance, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (Statement, error)
	ListStatements(ctx context.Context, req ListStatementsRequest) (ListStatementsResponse, error)
}
