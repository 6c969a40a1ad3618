package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	nodepackagedomain "github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	nodepackagerepo "github.com/smallbiznis/sponsornet/internal/nodepackage/repository"
	nodepackageservice "github.com/smallbiznis/sponsornet/internal/nodepackage/service"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	schedtesting "github.com/smallbiznis/sponsornet/internal/scheduler/testing"
	"github.com/smallbiznis/sponsornet/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPackages struct {
	mock.Mock
	nodepackagedomain.Service
}

func (m *mockPackages) ExpireDue(ctx context.Context, limit int) (int, error) {
	args := m.Called(limit)
	return args.Int(0), args.Error(1)
}

type mockPayments struct {
	mock.Mock
	paymentdomain.Service
}

func (m *mockPayments) FailStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	args := m.Called(olderThan, limit)
	return args.Int(0), args.Error(1)
}

type mockAuthz struct {
	mock.Mock
}

func (m *mockAuthz) Authorize(ctx context.Context, actor, object, action string) error {
	return m.Called(actor, object, action).Error(0)
}

func allowAll() *mockAuthz {
	authz := &mockAuthz{}
	authz.On("Authorize", "system", authorization.ObjectScheduler, mock.Anything).Return(nil)
	return authz
}

func newTestScheduler(t *testing.T, cfg Config, packages nodepackagedomain.Service, payments paymentdomain.Service, authz authorization.Service) *Scheduler {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.ResetSchedulerMetricsForTest()

	s, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      dbtest.IDGen(t),
		Clock:      clock.NewFakeClock(dbtest.Now()),
		PackageSvc: packages,
		PaymentSvc: payments,
		AuthzSvc:   authz,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "sponsornet",
		Environment: "test",
	})

	s := &Scheduler{log: zap.NewNop(), genID: dbtest.IDGen(t), clock: clock.NewFakeClock(time.Time{})}
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "sponsornet",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "sponsornet_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "sponsornet",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "sponsornet_scheduler_job_errors_total", errorLabels))
}

func TestExpirePackagesJobDrainsFullBatches(t *testing.T) {
	packages := &mockPackages{}
	packages.On("ExpireDue", 2).Return(2, nil).Once()
	packages.On("ExpireDue", 2).Return(1, nil).Once()
	s := newTestScheduler(t, Config{BatchSize: 2}, packages, &mockPayments{}, allowAll())

	require.NoError(t, s.ExpirePackagesJob(context.Background()))
	packages.AssertExpectations(t)
}

func TestFailStalePaymentsJobStopsOnBatchError(t *testing.T) {
	payments := &mockPayments{}
	payments.On("FailStale", time.Hour, 5).Return(3, errors.New("payment 9: locked")).Once()
	s := newTestScheduler(t, Config{BatchSize: 5, PaymentStaleAfter: time.Hour}, &mockPackages{}, payments, allowAll())

	err := s.FailStalePaymentsJob(context.Background())
	require.Error(t, err)
	payments.AssertNumberOfCalls(t, "FailStale", 1)
}

func TestJobsRequireSystemGrant(t *testing.T) {
	authz := &mockAuthz{}
	authz.On("Authorize", "system", authorization.ObjectScheduler, authorization.ActionSchedulerExpirePackages).Return(authorization.ErrForbidden)
	packages := &mockPackages{}
	s := newTestScheduler(t, Config{}, packages, &mockPayments{}, authz)

	assert.ErrorIs(t, s.ExpirePackagesJob(context.Background()), authorization.ErrForbidden)
	packages.AssertNotCalled(t, "ExpireDue", mock.Anything)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	packages := &mockPackages{}
	packages.On("ExpireDue", 200).Return(0, nil).Once()
	payments := &mockPayments{}
	s := newTestScheduler(t, Config{EnabledJobs: []string{"EXPIRE_PACKAGES"}}, packages, payments, allowAll())

	require.NoError(t, s.RunOnce(context.Background()))
	packages.AssertExpectations(t)
	payments.AssertNotCalled(t, "FailStale", mock.Anything, mock.Anything)
}

func TestRunOnceWrapsJobErrors(t *testing.T) {
	packages := &mockPackages{}
	packages.On("ExpireDue", 200).Return(0, errors.New("db down"))
	payments := &mockPayments{}
	payments.On("FailStale", 24*time.Hour, 200).Return(0, nil)
	s := newTestScheduler(t, Config{}, packages, payments, allowAll())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobExpirePackages+": db down")
	payments.AssertExpectations(t)
}

func TestNewRejectsUnsafeConfig(t *testing.T) {
	_, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      dbtest.IDGen(t),
		Clock:      clock.NewFakeClock(dbtest.Now()),
		PackageSvc: &mockPackages{},
		PaymentSvc: &mockPayments{},
		AuthzSvc:   allowAll(),
		Config:     Config{PaymentStaleAfter: time.Minute},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExpirePackagesJobAgainstDatabase(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 1})
	dbtest.SeedNode(t, db, dbtest.NodeFixture{ID: 2, ParentID: dbtest.Ref(1)})

	fake := clock.NewFakeClock(dbtest.Now())
	packages := nodepackageservice.NewService(nodepackageservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.IDGen(t),
		Clock: fake,
		Repo:  nodepackagerepo.Provide(),
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	ctx := context.Background()
	pkg := catalogdomain.Package{ID: 500, Name: "Starter", Price: decimal.NewFromInt(100000), DurationDays: 30, Level: 1, IsActive: true}
	for _, nodeID := range []snowflake.ID{1, 2} {
		_, err := packages.Activate(ctx, db, nodeID, pkg)
		require.NoError(t, err)
	}
	accel := schedtesting.NewTimeAccelerator(db, fake.Now)
	require.NoError(t, accel.ExpirePackage(ctx, 1))

	s := newTestScheduler(t, Config{BatchSize: 10}, packages, &mockPayments{}, authz)
	s.clock = fake
	require.NoError(t, s.ExpirePackagesJob(ctx))

	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM node_packages WHERE status = ?`, nodepackagedomain.StatusExpired))
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM node_packages WHERE node_id = 2 AND status = ?`, nodepackagedomain.StatusActive))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
