package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/flutterwave"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/mobilemoney"
	"github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/smallbiznis/sponsornet/internal/payment/repository"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	mmSecret = "mm-secret"
	fwHash   = "fw-hash"
)

type mockPaymentService struct {
	mock.Mock
	domain.Service
}

func (m *mockPaymentService) ApplyProviderStatus(ctx context.Context, req domain.StatusUpdateRequest) (domain.Payment, error) {
	args := m.Called(req.PaymentID, req.Status)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func newTestService(t *testing.T, db *gorm.DB, payments domain.Service) *Service {
	t.Helper()
	cfg := config.Config{Webhooks: config.WebhookSecrets{MobileMoneySecret: mmSecret, FlutterwaveHash: fwHash}}
	return NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      dbtest.IDGen(t),
		Clock:      clock.NewFakeClock(dbtest.Now()),
		Repo:       repository.Provide(),
		PaymentSvc: payments,
		Adapters:   adapters.NewRegistry(mobilemoney.NewFactory(), flutterwave.NewFactory()),
		Cfg:        cfg,
	}).(*Service)
}

func seedPayment(t *testing.T, db *gorm.DB, id snowflake.ID, externalTxID string) domain.Payment {
	t.Helper()
	payment := domain.Payment{
		ID:           id,
		NodeID:       4,
		PackageID:    500,
		Amount:       decimal.NewFromInt(100000),
		ExternalTxID: externalTxID,
		Method:       domain.MethodMobileMoney,
		Status:       domain.StatusPending,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    dbtest.Now(),
		UpdatedAt:    dbtest.Now(),
	}
	require.NoError(t, repository.Provide().Insert(context.Background(), db, &payment))
	return payment
}

func signed(payload []byte) http.Header {
	headers := http.Header{}
	headers.Set(mobilemoney.SignatureHeader, mobilemoney.Sign(mmSecret, payload))
	return headers
}

func TestIngestAppliesStatusOnce(t *testing.T) {
	db := dbtest.Open(t)
	payment := seedPayment(t, db, 900, "tx-1")
	payments := &mockPaymentService{}
	payments.On("ApplyProviderStatus", "900", "SUCCESSFUL").
		Return(domain.Payment{ID: 900, Status: domain.StatusSuccessful}, nil).Once()
	svc := newTestService(t, db, payments)

	payload := []byte(`{"trans_id":"tx-1","status":"SUCCESSFUL"}`)
	result, err := svc.IngestWebhook(context.Background(), "MobileMoney", payload, signed(payload))
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	result, err = svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	payments.AssertExpectations(t)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events`))
	assert.Equal(t, int64(1), dbtest.Count(t, db,
		`SELECT COUNT(*) FROM payment_events WHERE provider = 'mobilemoney' AND payment_ref = ? AND processed_at IS NOT NULL`, payment.ExternalTxID))
}

func TestIngestRejectsBadSignature(t *testing.T) {
	db := dbtest.Open(t)
	seedPayment(t, db, 900, "tx-1")
	payments := &mockPaymentService{}
	svc := newTestService(t, db, payments)

	payload := []byte(`{"trans_id":"tx-1","status":"SUCCESSFUL"}`)
	headers := http.Header{}
	headers.Set(mobilemoney.SignatureHeader, mobilemoney.Sign("wrong", payload))

	_, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	_, err = svc.IngestWebhook(context.Background(), "mobilemoney", payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events`))
	payments.AssertNotCalled(t, "ApplyProviderStatus", mock.Anything, mock.Anything)
}

func TestIngestValidatesProviderAndPayload(t *testing.T) {
	svc := newTestService(t, dbtest.Open(t), &mockPaymentService{})

	_, err := svc.IngestWebhook(context.Background(), " ", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)
	_, err = svc.IngestWebhook(context.Background(), "stripe", []byte(`{}`), nil)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	_, err = svc.IngestWebhook(context.Background(), "mobilemoney", []byte(`not json`), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestIngestUnmappedStatusIsNotAccepted(t *testing.T) {
	db := dbtest.Open(t)
	seedPayment(t, db, 900, "tx-1")
	payments := &mockPaymentService{}
	payments.On("ApplyProviderStatus", "900", "PENDING").
		Return(domain.Payment{ID: 900, Status: domain.StatusPending}, nil).Once()
	svc := newTestService(t, db, payments)

	payload := []byte(`{"trans_id":"tx-1","status":"PENDING"}`)
	result, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	payments.AssertExpectations(t)
}

func TestIngestRetriesUnprocessedEvent(t *testing.T) {
	db := dbtest.Open(t)
	seedPayment(t, db, 900, "tx-1")
	payments := &mockPaymentService{}
	payments.On("ApplyProviderStatus", "900", "FAILED").
		Return(domain.Payment{}, errors.New("database is locked")).Once()
	payments.On("ApplyProviderStatus", "900", "FAILED").
		Return(domain.Payment{ID: 900, Status: domain.StatusFailed}, nil).Once()
	svc := newTestService(t, db, payments)

	payload := []byte(`{"event_id":"evt-7","trans_id":"tx-1","status":"FAILED","reason":"timeout"}`)
	_, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.Error(t, err)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events WHERE processed_at IS NULL`))

	result, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events WHERE provider_event_id = 'evt-7' AND processed_at IS NOT NULL`))
	payments.AssertExpectations(t)
}

func TestIngestDefersWhileConfirmationInProgress(t *testing.T) {
	db := dbtest.Open(t)
	seedPayment(t, db, 900, "tx-1")
	payments := &mockPaymentService{}
	payments.On("ApplyProviderStatus", "900", "SUCCESS").
		Return(domain.Payment{ID: 900, Status: domain.StatusPending}, domain.ErrConfirmationInProgress).Once()
	payments.On("ApplyProviderStatus", "900", "SUCCESS").
		Return(domain.Payment{ID: 900, Status: domain.StatusSuccessful}, nil).Once()
	svc := newTestService(t, db, payments)

	payload := []byte(`{"event_id":"evt-9","trans_id":"tx-1","status":"SUCCESS"}`)
	_, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.ErrorIs(t, err, domain.ErrConfirmationInProgress)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events WHERE provider_event_id = 'evt-9' AND processed_at IS NULL`))

	result, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM payment_events WHERE provider_event_id = 'evt-9' AND processed_at IS NOT NULL`))
	payments.AssertExpectations(t)
}

func TestIngestUnknownPayment(t *testing.T) {
	db := dbtest.Open(t)
	payments := &mockPaymentService{}
	svc := newTestService(t, db, payments)

	payload := []byte(`{"trans_id":"tx-missing","status":"SUCCESS"}`)
	_, err := svc.IngestWebhook(context.Background(), "mobilemoney", payload, signed(payload))
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	payments.AssertNotCalled(t, "ApplyProviderStatus", mock.Anything, mock.Anything)
}

func TestIngestFlutterwave(t *testing.T) {
	db := dbtest.Open(t)
	seedPayment(t, db, 901, "fw-ref-1")
	payments := &mockPaymentService{}
	payments.On("ApplyProviderStatus", "901", "successful").
		Return(domain.Payment{ID: 901, Status: domain.StatusSuccessful}, nil).Once()
	svc := newTestService(t, db, payments)

	headers := http.Header{}
	headers.Set(flutterwave.HashHeader, fwHash)

	ignored := []byte(`{"event":"transfer.completed","data":{"id":1,"tx_ref":"fw-ref-1","status":"successful"}}`)
	result, err := svc.IngestWebhook(context.Background(), "flutterwave", ignored, headers)
	require.NoError(t, err)
	assert.False(t, result.Accepted)

	payload := []byte(`{"event":"charge.completed","data":{"id":285959875,"tx_ref":"fw-ref-1","status":"successful"}}`)
	result, err = svc.IngestWebhook(context.Background(), "flutterwave", payload, headers)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	payments.AssertExpectations(t)
	assert.Equal(t, int64(1), dbtest.Count(t, db,
		`SELECT COUNT(*) FROM payment_events WHERE provider_event_id = '285959875:SUCCESSFUL' AND status = 'SUCCESSFUL'`))
}
