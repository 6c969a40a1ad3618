package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// OpenStatuses are the states a payment may leave.
var OpenStatuses = []Status{StatusPending, StatusProcessing}

type Method string

const (
	MethodMobileMoney Method = "MOBILE_MONEY"
	MethodCard        Method = "CARD"
	MethodBank        Method = "BANK_TRANSFER"
)

func ParseMethod(raw string) (Method, bool) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(raw))); m {
	case MethodMobileMoney, MethodCard, MethodBank:
		return m, true
	}
	return "", false
}

// Payment is a package purchase attempt for a node.
type Payment struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	NodeID        snowflake.ID      `gorm:"not null;index" json:"node_id"`
	PackageID     snowflake.ID      `gorm:"not null" json:"package_id"`
	Amount        decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	ExternalTxID  string            `gorm:"column:external_tx_id;type:text;not null;uniqueIndex" json:"external_tx_id"`
	Method        Method            `gorm:"type:text;not null" json:"method"`
	Status        Status            `gorm:"type:text;not null" json:"status"`
	Phone         *string           `gorm:"type:text" json:"phone,omitempty"`
	Reference     *string           `gorm:"type:text" json:"reference,omitempty"`
	FailureReason *string           `gorm:"type:text" json:"failure_reason,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null" json:"metadata"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func (Payment) TableName() string { return "node_payments" }

// EventRecord stores one provider webhook delivery. (provider,
// provider_event_id) is unique so redeliveries collapse onto one row.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	PaymentRef      string         `json:"payment_ref" gorm:"type:text;not null"`
	Status          string         `json:"status" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const EventTypeStatusUpdate = "payment_status"

// WebhookEvent is the canonical event parsed by provider adapters.
// PaymentRef carries the external transaction id the payment was
// initiated with.
type WebhookEvent struct {
	Provider        string
	ProviderEventID string
	PaymentRef      string
	Status          string
	Reason          string
	RawPayload      []byte
}

// MapProviderStatus translates provider vocabularies into a payment
// status. Unknown values report false and must not change state.
func MapProviderStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCESSFUL":
		return StatusSuccessful, true
	case "FAILED", "FAILURE":
		return StatusFailed, true
	case "CANCELLED":
		return StatusCancelled, true
	}
	return "", false
}
