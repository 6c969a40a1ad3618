package flutterwave

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
)

const (
	Provider   = "flutterwave"
	HashHeader = "verif-hash"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	hash := strings.TrimSpace(cfg.Secret)
	if hash == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{hash: hash}, nil
}

// Adapter checks the static verif-hash Flutterwave sends with every
// callback against the hash configured on the dashboard.
type Adapter struct {
	hash string
}

type event struct {
	Event string `json:"event"`
	Data  struct {
		ID                json.Number `json:"id"`
		TxRef             string      `json:"tx_ref"`
		Status            string      `json:"status"`
		ProcessorResponse string      `json:"processor_response"`
	} `json:"data"`
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	got := strings.TrimSpace(headers.Get(HashHeader))
	if got == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.hash)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if !strings.HasPrefix(strings.TrimSpace(evt.Event), "charge.") {
		return nil, paymentdomain.ErrEventIgnored
	}

	ref := strings.TrimSpace(evt.Data.TxRef)
	status := strings.TrimSpace(evt.Data.Status)
	if ref == "" || status == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventID := strings.TrimSpace(evt.Data.ID.String())
	if _, err := strconv.ParseInt(eventID, 10, 64); err != nil {
		eventID = ref
	}
	return &paymentdomain.WebhookEvent{
		ProviderEventID: eventID + ":" + strings.ToUpper(status),
		PaymentRef:      ref,
		Status:          status,
		Reason:          strings.TrimSpace(evt.Data.ProcessorResponse),
		RawPayload:      payload,
	}, nil
}
