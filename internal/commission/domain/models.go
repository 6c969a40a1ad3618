package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	notificationdomain "github.com/smallbiznis/sponsornet/internal/notification/domain"
)

const (
	TypeLevel       = "LEVEL"
	StatusProcessed = "PROCESSED"
)

// Commission records one level's payout to a sponsor. Each row pairs with a
// COMMISSION ledger statement.
type Commission struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	RecipientUserID snowflake.ID    `gorm:"not null" json:"recipient_user_id"`
	RecipientNodeID snowflake.ID    `gorm:"not null" json:"recipient_node_id"`
	SourceUserID    snowflake.ID    `gorm:"not null" json:"source_user_id"`
	SourceNodeID    snowflake.ID    `gorm:"not null" json:"source_node_id"`
	PackageID       snowflake.ID    `gorm:"not null" json:"package_id"`
	PaymentID       *snowflake.ID   `json:"payment_id,omitempty"`
	StatementID     snowflake.ID    `gorm:"not null" json:"statement_id"`
	Level           int             `gorm:"not null" json:"level"`
	Type            string          `gorm:"type:text;not null" json:"type"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Status          string          `gorm:"type:text;not null" json:"status"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (Commission) TableName() string { return "commissions" }

type Input struct {
	NodeID    snowflake.ID
	Amount    decimal.Decimal
	PackageID snowflake.ID
	PaymentID *snowflake.ID
}

type Distribution struct {
	Level           int
	Rate            decimal.Decimal
	Amount          decimal.Decimal
	RecipientNodeID snowflake.ID
	RecipientUserID snowflake.ID
	CommissionID    snowflake.ID
	StatementID     snowflake.ID
}

// Result lists the payouts written in the caller's transaction and the
// notifications to deliver once it commits.
type Result struct {
	Distributions []Distribution
	Total         decimal.Decimal
	Notifications []notificationdomain.Message
}
