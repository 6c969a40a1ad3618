// Package mobilemoney verifies and parses callbacks from the mobile money
// aggregator. Callbacks are signed with a hex HMAC-SHA256 of the raw body
// in the X-Signature header.
package mobilemoney

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
)

const (
	Provider        = "mobilemoney"
	SignatureHeader = "X-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{secret: secret}, nil
}

type Adapter struct {
	secret string
}

type callback struct {
	EventID string `json:"event_id"`
	TransID string `json:"trans_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.ToLower(strings.TrimSpace(headers.Get(SignatureHeader)))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(a.secret, payload))) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var cb callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	ref := strings.TrimSpace(cb.TransID)
	status := strings.TrimSpace(cb.Status)
	if ref == "" || status == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventID := strings.TrimSpace(cb.EventID)
	if eventID == "" {
		eventID = ref + ":" + strings.ToUpper(status)
	}
	return &paymentdomain.WebhookEvent{
		ProviderEventID: eventID,
		PaymentRef:      ref,
		Status:          status,
		Reason:          strings.TrimSpace(cb.Reason),
		RawPayload:      payload,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
