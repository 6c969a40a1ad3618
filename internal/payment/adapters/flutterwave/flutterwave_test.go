package flutterwave

import (
	"context"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHash(t *testing.T) {
	adapter := &Adapter{hash: "dashboard-hash"}
	headers := http.Header{}

	assert.ErrorIs(t, adapter.Verify(context.Background(), nil, headers), paymentdomain.ErrInvalidSignature)
	headers.Set(HashHeader, "guess")
	assert.ErrorIs(t, adapter.Verify(context.Background(), nil, headers), paymentdomain.ErrInvalidSignature)
	headers.Set(HashHeader, "dashboard-hash")
	assert.NoError(t, adapter.Verify(context.Background(), nil, headers))
}

func TestParse(t *testing.T) {
	adapter := &Adapter{hash: "h"}

	event, err := adapter.Parse(context.Background(), []byte(
		`{"event":"charge.completed","data":{"id":42,"tx_ref":"ref-9","status":"failed","processor_response":"Insufficient funds"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ref-9", event.PaymentRef)
	assert.Equal(t, "failed", event.Status)
	assert.Equal(t, "42:FAILED", event.ProviderEventID)
	assert.Equal(t, "Insufficient funds", event.Reason)

	_, err = adapter.Parse(context.Background(), []byte(`{"event":"subscription.cancelled","data":{}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
	_, err = adapter.Parse(context.Background(), []byte(`{"event":"charge.completed","data":{"id":42,"status":"successful"}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
