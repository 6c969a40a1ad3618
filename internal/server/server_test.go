package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type mockNetwork struct {
	mock.Mock
	networkdomain.Service
}

func (m *mockNetwork) Register(ctx context.Context, req networkdomain.RegisterNodeRequest) (networkdomain.RegisterNodeResult, error) {
	args := m.Called(req)
	return args.Get(0).(networkdomain.RegisterNodeResult), args.Error(1)
}

func (m *mockNetwork) GetNode(ctx context.Context, id string) (networkdomain.Node, error) {
	args := m.Called(id)
	return args.Get(0).(networkdomain.Node), args.Error(1)
}

func (m *mockNetwork) PreviewPlacement(ctx context.Context, sponsorID string) (networkdomain.Placement, error) {
	args := m.Called(sponsorID)
	return args.Get(0).(networkdomain.Placement), args.Error(1)
}

type mockLedger struct {
	mock.Mock
	ledgerdomain.Service
}

func (m *mockLedger) GetBalance(ctx context.Context, nodeID string) (ledgerdomain.Balance, error) {
	args := m.Called(nodeID)
	return args.Get(0).(ledgerdomain.Balance), args.Error(1)
}

func (m *mockLedger) Withdraw(ctx context.Context, req ledgerdomain.WithdrawRequest) (ledgerdomain.Statement, error) {
	args := m.Called(req)
	return args.Get(0).(ledgerdomain.Statement), args.Error(1)
}

func (m *mockLedger) ListStatements(ctx context.Context, req ledgerdomain.ListStatementsRequest) (ledgerdomain.ListStatementsResponse, error) {
	args := m.Called(req)
	return args.Get(0).(ledgerdomain.ListStatementsResponse), args.Error(1)
}

type mockCatalog struct {
	mock.Mock
	catalogdomain.Service
}

func (m *mockCatalog) ListPackages(ctx context.Context) ([]catalogdomain.Package, error) {
	args := m.Called()
	return args.Get(0).([]catalogdomain.Package), args.Error(1)
}

type mockPayments struct {
	mock.Mock
	paymentdomain.Service
}

func (m *mockPayments) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.Payment, error) {
	args := m.Called(req)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPayments) GetPayment(ctx context.Context, id string) (paymentdomain.Payment, error) {
	args := m.Called(id)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPayments) ConfirmSuccess(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	args := m.Called(id)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPayments) ConfirmFailure(ctx context.Context, id snowflake.ID, reason string) (paymentdomain.Payment, error) {
	args := m.Called(id, reason)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

func (m *mockPayments) ApplyProviderStatus(ctx context.Context, req paymentdomain.StatusUpdateRequest) (paymentdomain.Payment, error) {
	args := m.Called(req)
	return args.Get(0).(paymentdomain.Payment), args.Error(1)
}

type mockWebhooks struct {
	mock.Mock
}

func (m *mockWebhooks) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.WebhookResult, error) {
	args := m.Called(provider, string(payload))
	return args.Get(0).(paymentdomain.WebhookResult), args.Error(1)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) AuditLog(ctx context.Context, action string, targetType string, targetID string, metadata map[string]any) error {
	return nil
}

func (m *mockAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

type testServer struct {
	engine   *gin.Engine
	network  *mockNetwork
	ledger   *mockLedger
	catalog  *mockCatalog
	payments *mockPayments
	webhooks *mockWebhooks
	audit    *mockAudit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		engine:   engine,
		network:  &mockNetwork{},
		ledger:   &mockLedger{},
		catalog:  &mockCatalog{},
		payments: &mockPayments{},
		webhooks: &mockWebhooks{},
		audit:    &mockAudit{},
	}
	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{JWTSecret: testSecret},
		NetworkSvc: ts.network,
		LedgerSvc:  ts.ledger,
		CatalogSvc: ts.catalog,
		PaymentSvc: ts.payments,
		WebhookSvc: ts.webhooks,
		AuthzSvc:   authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		AuditSvc:   ts.audit,
	})
	srv.RegisterAPIRoutes()
	srv.RegisterAdminRoutes()
	return ts
}

func token(t *testing.T, userID snowflake.ID, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/packages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, "/api/packages", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterNodeDefaultsToCaller(t *testing.T) {
	ts := newTestServer(t)
	ts.network.On("Register", networkdomain.RegisterNodeRequest{UserID: "42", SponsorCode: "ABC123"}).
		Return(networkdomain.RegisterNodeResult{Node: networkdomain.Node{ID: 100, UserID: 42}}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/nodes", token(t, 42, RoleMember), map[string]string{"sponsor_code": "ABC123"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	ts.network.AssertExpectations(t)
}

func TestRegisterNodeForOtherUserNeedsAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/nodes", token(t, 42, RoleMember), map[string]string{"user_id": "43"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.network.On("Register", networkdomain.RegisterNodeRequest{UserID: "43"}).
		Return(networkdomain.RegisterNodeResult{}, networkdomain.ErrNodeAlreadyExists).Once()
	rec = ts.do(t, http.MethodPost, "/api/nodes", token(t, 7, RoleAdmin), map[string]string{"user_id": "43"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "node_already_exists", decodeError(t, rec).Message)
}

func TestForeignNodeIsHiddenFromMembers(t *testing.T) {
	ts := newTestServer(t)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 99}, nil)
	ts.ledger.On("GetBalance", "100").Return(ledgerdomain.Balance{NodeID: 100, Available: decimal.NewFromInt(5000)}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/nodes/100/balance", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/nodes/100/balance", token(t, 7, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.ledger.AssertExpectations(t)
}

func TestListStatementsBindsFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 42}, nil)
	ts.ledger.On("ListStatements", mock.MatchedBy(func(req ledgerdomain.ListStatementsRequest) bool {
		return req.NodeID == "100" && req.Type == "COMMISSION" && req.PageSize == 5
	})).Return(ledgerdomain.ListStatementsResponse{}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/nodes/100/statements?type=COMMISSION&page_size=5", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.ledger.AssertExpectations(t)
}

func TestWithdrawMapsLedgerErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 42}, nil)
	ts.ledger.On("Withdraw", ledgerdomain.WithdrawRequest{NodeID: "100", Amount: "500000"}).
		Return(ledgerdomain.Statement{}, ledgerdomain.ErrWithdrawalLimitExceeded).Once()

	rec := ts.do(t, http.MethodPost, "/api/nodes/100/withdrawals", token(t, 42, RoleMember), map[string]string{"amount": "500000"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "withdrawal_limit_exceeded", payload.Errors[0].Code)
	assert.Equal(t, "amount", payload.Errors[0].Field)

	rec = ts.do(t, http.MethodPost, "/api/nodes/100/withdrawals", token(t, 7, RoleAdmin), map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPreviewPlacementUsesNodeAsSponsor(t *testing.T) {
	ts := newTestServer(t)
	parent := snowflake.ID(100)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 42}, nil)
	ts.network.On("PreviewPlacement", "100").Return(networkdomain.Placement{ParentID: &parent, Position: networkdomain.PositionLeft, Level: 1}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/nodes/100/placement", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"position":"LEFT"`)
}

func TestInitiatePaymentRequiresOwnedNode(t *testing.T) {
	ts := newTestServer(t)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 42}, nil)
	req := paymentdomain.InitiateRequest{NodeID: "100", PackageID: "500", Amount: "100000", Method: "MOBILE_MONEY", ExternalTxID: "tx-1"}
	ts.payments.On("Initiate", req).Return(paymentdomain.Payment{ID: 900, NodeID: 100}, nil).Once()
	ts.payments.On("Initiate", mock.Anything).Return(paymentdomain.Payment{}, paymentdomain.ErrDuplicateTransaction).Once()

	rec := ts.do(t, http.MethodPost, "/api/payments", token(t, 42, RoleMember), req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/payments", token(t, 42, RoleMember), req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/payments", token(t, 43, RoleMember), req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPaymentHidesForeignPayments(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.On("GetPayment", "900").Return(paymentdomain.Payment{ID: 900, NodeID: 100}, nil)
	ts.network.On("GetNode", "100").Return(networkdomain.Node{ID: 100, UserID: 42}, nil)

	rec := ts.do(t, http.MethodGet, "/api/payments/900", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/payments/900", token(t, 43, RoleMember), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestUpdatePaymentStatusRequiresReconcileGrant(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.On("ApplyProviderStatus", paymentdomain.StatusUpdateRequest{PaymentID: "900", Status: "SUCCESSFUL"}).
		Return(paymentdomain.Payment{ID: 900, Status: paymentdomain.StatusSuccessful}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/admin/payments/900/status", token(t, 42, RoleMember), map[string]string{"status": "SUCCESSFUL"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/payments/900/status", token(t, 42, RoleMember), map[string]string{"status": "SUCCESSFUL"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/payments/900/status", token(t, 7, RoleAdmin), map[string]string{"status": "SUCCESSFUL"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/payments/abc/status", token(t, 7, RoleAdmin), map[string]string{"status": "SUCCESSFUL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.payments.AssertExpectations(t)
	ts.payments.AssertNumberOfCalls(t, "ApplyProviderStatus", 1)
}

func TestAdminConfirmAndFail(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.On("ConfirmSuccess", snowflake.ID(900)).Return(paymentdomain.Payment{ID: 900, Status: paymentdomain.StatusSuccessful}, nil).Once()
	ts.payments.On("ConfirmFailure", snowflake.ID(901), "failed by operator").Return(paymentdomain.Payment{ID: 901, Status: paymentdomain.StatusFailed}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/admin/payments/900/confirm", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/payments/900/confirm", token(t, 7, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/payments/901/fail", token(t, 7, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/payments/abc/confirm", token(t, 7, RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ts.payments.AssertExpectations(t)
}

func TestPaymentWebhook(t *testing.T) {
	ts := newTestServer(t)
	ts.webhooks.On("IngestWebhook", "flutterwave", `{"event":"charge.completed"}`).
		Return(paymentdomain.WebhookResult{Accepted: true}, nil).Once()
	ts.webhooks.On("IngestWebhook", "flutterwave", `{}`).
		Return(paymentdomain.WebhookResult{}, paymentdomain.ErrInvalidSignature).Once()

	rec := ts.do(t, http.MethodPost, "/api/payments/webhooks/flutterwave", "", map[string]string{"event": "charge.completed"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","accepted":true}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/payments/webhooks/flutterwave", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAuditLogsIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.audit.On("List", mock.MatchedBy(func(req auditdomain.ListAuditLogRequest) bool {
		return req.Action == "payment.confirmed" && req.TargetType == "payment"
	})).Return(auditdomain.ListAuditLogResponse{}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/admin/audit-logs?action=payment.confirmed&resource_type=payment", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/audit-logs?action=payment.confirmed&resource_type=payment", token(t, 7, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ts.audit.AssertExpectations(t)
}

func TestListPackages(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.On("ListPackages").Return([]catalogdomain.Package{{ID: 1, Level: 1}}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/packages", token(t, 42, RoleMember), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapErrorFallsBackToProcessingError(t *testing.T) {
	status, payload := mapError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "processing_error", payload.Type)

	errType, code := classifyErrorForLog(paymentdomain.ErrInvalidAmount)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_amount", code)

	status, payload = mapError(fmt.Errorf("webhook: %w", paymentdomain.ErrConfirmationInProgress))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "payment_confirmation_in_progress", payload.Message)
}
