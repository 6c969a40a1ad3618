package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

type InitiateRequest struct {
	NodeID       string `json:"node_id"`
	PackageID    string `json:"package_id"`
	Amount       string `json:"amount"`
	Method       string `json:"method"`
	ExternalTxID string `json:"external_tx_id"`
	Phone        string `json:"phone"`
	Reference    string `json:"reference"`
}

// StatusUpdateRequest reports a provider status for a payment, either from a
// synchronous poll or an operator.
type StatusUpdateRequest struct {
	PaymentID string `json:"-"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

// Service is the payment state machine. Confirm methods are idempotent: once
// a payment is terminal they return it unchanged.
type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (Payment, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	ConfirmSuccess(ctx context.Context, id snowflake.ID) (Payment, error)
	ConfirmFailure(ctx context.Context, id snowflake.ID, reason string) (Payment, error)
	ConfirmCancelled(ctx context.Context, id snowflake.ID, reason string) (Payment, error)
	// ApplyProviderStatus maps a provider status and delegates to the
	// matching confirm method. Unmapped statuses leave the payment as is.
	ApplyProviderStatus(ctx context.Context, req StatusUpdateRequest) (Payment, error)
	// FailStale fails open payments created before olderThan ago.
	FailStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type WebhookResult struct {
	Accepted bool `json:"accepted"`
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (WebhookResult, error)
}
