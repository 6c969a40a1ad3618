package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// StatementType classifies a ledger movement. Only DEBIT reduces the balance.
type StatementType string

const (
	StatementTypeCredit       StatementType = "CREDIT"
	StatementTypeDebit        StatementType = "DEBIT"
	StatementTypeCommission   StatementType = "COMMISSION"
	StatementTypeDailyHarvest StatementType = "DAILY_HARVEST"
	StatementTypePrizeAward   StatementType = "PRIZE_AWARD"
)

func (t StatementType) Valid() bool {
	switch t {
	case StatementTypeCredit, StatementTypeDebit, StatementTypeCommission,
		StatementTypeDailyHarvest, StatementTypePrizeAward:
		return true
	}
	return false
}

// Signed returns the balance delta of amount for this type.
func (t StatementType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == StatementTypeDebit {
		return amount.Neg()
	}
	return amount
}

type StatementStatus string

const (
	StatementStatusPending   StatementStatus = "PENDING"
	StatementStatusCompleted StatementStatus = "COMPLETED"
	StatementStatusFailed    StatementStatus = "FAILED"
	StatementStatusScheduled StatementStatus = "SCHEDULED"
)

// ReferenceType links a statement back to the event that produced it.
type ReferenceType string

const (
	ReferenceTypePayment         ReferenceType = "PAYMENT"
	ReferenceTypePackage         ReferenceType = "PACKAGE"
	ReferenceTypeWithdrawal      ReferenceType = "WITHDRAWAL"
	ReferenceTypeActivationBonus ReferenceType = "ACTIVATION_BONUS"
	ReferenceTypeDeposit         ReferenceType = "DEPOSIT"
)

// Statement is an append-only ledger entry for one node. Only the status of
// pending or scheduled rows ever changes.
type Statement struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	NodeID        snowflake.ID    `gorm:"not null;index" json:"node_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Type          StatementType   `gorm:"type:text;not null" json:"type"`
	Status        StatementStatus `gorm:"type:text;not null" json:"status"`
	ReferenceType ReferenceType   `gorm:"type:text;not null" json:"reference_type"`
	ReferenceID   snowflake.ID    `gorm:"not null" json:"reference_id"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	Description   string          `gorm:"type:text" json:"description,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Statement) TableName() string { return "node_statements" }

// NodeBalance is the cached balance row of a node.
type NodeBalance struct {
	ID               snowflake.ID
	AvailableBalance decimal.Decimal
}

type WithdrawalLimits struct {
	Daily   decimal.Decimal `json:"daily"`
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
}

// Min returns the smallest remaining allowance across all windows.
func (l WithdrawalLimits) Min() decimal.Decimal {
	return decimal.Min(l.Daily, l.Weekly, l.Monthly)
}

type Balance struct {
	NodeID           snowflake.ID     `json:"node_id"`
	Available        decimal.Decimal  `json:"available"`
	PackageLevel     int              `json:"package_level"`
	WithdrawalLimits WithdrawalLimits `json:"pending_withdrawal_limits"`
}

type StatementCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	NodeID snowflake.ID
	Type   StatementType
	Cursor *StatementCursor
	Limit  int
}
