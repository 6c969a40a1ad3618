package mobilemoney

import (
	"context"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Secret: "s3cret"})
	require.NoError(t, err)
	payload := []byte(`{"trans_id":"tx-1","status":"SUCCESS"}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, Sign("s3cret", payload))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set(SignatureHeader, Sign("other", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	tampered := []byte(`{"trans_id":"tx-1","status":"FAILED"}`)
	headers.Set(SignatureHeader, Sign("s3cret", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), tampered, headers), paymentdomain.ErrInvalidSignature)
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Secret: "  "})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestParse(t *testing.T) {
	adapter := &Adapter{secret: "s3cret"}

	event, err := adapter.Parse(context.Background(), []byte(`{"trans_id":" tx-1 ","status":"success"}`))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", event.PaymentRef)
	assert.Equal(t, "success", event.Status)
	assert.Equal(t, "tx-1:SUCCESS", event.ProviderEventID)

	event, err = adapter.Parse(context.Background(), []byte(`{"event_id":"evt-1","trans_id":"tx-1","status":"FAILED","reason":"declined"}`))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.ProviderEventID)
	assert.Equal(t, "declined", event.Reason)

	_, err = adapter.Parse(context.Background(), []byte(`{"status":"SUCCESS"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
	_, err = adapter.Parse(context.Background(), []byte(`[`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
