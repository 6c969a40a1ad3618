package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypeCommission      = "COMMISSION"
	TypePayment         = "PAYMENT"
	TypeActivationBonus = "ACTIVATION_BONUS"
	TypeAdminAlert      = "ADMIN_ALERT"
)

// Notifier is the outbound sink for user notifications and admin alerts.
// Callers treat every error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, userID snowflake.ID, title, message, notificationType string) error
	AlertAdmins(ctx context.Context, title, message string) error
}

// Message is a notification collected inside a transaction and delivered
// after it commits. A zero UserID addresses the admins.
type Message struct {
	UserID snowflake.ID
	Title  string
	Body   string
	Type   string
}

func (m Message) IsAdminAlert() bool { return m.UserID == 0 }

// Envelope is the wire form published to the broker.
type Envelope struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Audience   string    `json:"audience"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
