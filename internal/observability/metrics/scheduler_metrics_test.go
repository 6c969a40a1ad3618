package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "sponsornet", Environment: "test"})

	m.AddBatchProcessed("expire_packages", "node_packages", 3)
	m.AddBatchProcessed("expire_packages", "node_packages", 0)

	got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("expire_packages", "node_packages"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncJobErrorUsesReasonLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})

	m.IncJobError("fail_stale_payments", context.DeadlineExceeded)
	m.IncJobError("fail_stale_payments", nil)

	got := testutil.ToFloat64(m.jobErrors.WithLabelValues("fail_stale_payments", SchedulerJobReasonDeadlineExceeded))
	if got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestObserveRunLoopLagClampsNegative(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})
	m.ObserveRunLoopLag(-time.Second)

	if n := testutil.CollectAndCount(registry, "sponsornet_scheduler_runloop_lag_seconds"); n != 1 {
		t.Fatalf("expected lag histogram to be collected, got %d", n)
	}
}
