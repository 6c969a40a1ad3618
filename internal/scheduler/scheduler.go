package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/authorization"
	"github.com/smallbiznis/sponsornet/internal/clock"
	nodepackagedomain "github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/smallbiznis/sponsornet/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpirePackages    = "expire_packages"
	JobFailStalePayments = "fail_stale_payments"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	PackageSvc nodepackagedomain.Service
	PaymentSvc paymentdomain.Service
	AuthzSvc   authorization.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	packageSvc nodepackagedomain.Service
	paymentSvc paymentdomain.Service
	authzSvc   authorization.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.PackageSvc == nil || p.PaymentSvc == nil || p.AuthzSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if err := errors.Join(
		guard.EnsureBatchSize(cfg.BatchSize),
		guard.EnsurePaymentStaleWindow(cfg.PaymentStaleAfter),
		guard.EnsureJobTimeout(cfg.JobTimeout, cfg.RunInterval),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		packageSvc: p.PackageSvc,
		paymentSvc: p.PaymentSvc,
		authzSvc:   p.AuthzSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errors == 0 {
			run.errors++
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick resumes the work.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpirePackages, s.ExpirePackagesJob},
		{JobFailStalePayments, s.FailStalePaymentsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpirePackagesJob marks lapsed node packages EXPIRED, one batch per
// transaction, until a short batch signals the backlog is drained.
func (s *Scheduler) ExpirePackagesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpirePackages, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	if err := s.authorizeSystem(ctx, authorization.ActionSchedulerExpirePackages); err != nil {
		s.jobError(ctx, run, "authorize", err)
		return err
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		started := s.clock.Now()
		expired, err := s.packageSvc.ExpireDue(ctx, s.cfg.BatchSize)
		schedMetrics.ObserveLockWait(obsmetrics.LockResourceNodePackagesDue, s.clock.Now().Sub(started))
		if err != nil {
			s.jobError(ctx, run, "batch", err)
			return err
		}
		run.addBatch(expired)
		schedMetrics.AddBatchProcessed(JobExpirePackages, "node_packages", expired)
		if expired < s.cfg.BatchSize {
			if expired == 0 {
				schedMetrics.IncBatchDeferred(JobExpirePackages, obsmetrics.SchedulerBatchDeferredReasonEmpty)
			}
			return nil
		}
	}
}

// FailStalePaymentsJob fails payments left PENDING or PROCESSING for longer
// than the configured window. A batch with per-payment errors stops the loop
// so the same rows are not retried until the next tick.
func (s *Scheduler) FailStalePaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobFailStalePayments, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	if err := s.authorizeSystem(ctx, authorization.ActionSchedulerFailPayments); err != nil {
		s.jobError(ctx, run, "authorize", err)
		return err
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		started := s.clock.Now()
		failed, err := s.paymentSvc.FailStale(ctx, s.cfg.PaymentStaleAfter, s.cfg.BatchSize)
		schedMetrics.ObserveLockWait(obsmetrics.LockResourceStalePayments, s.clock.Now().Sub(started))
		run.addBatch(failed)
		schedMetrics.AddBatchProcessed(JobFailStalePayments, "node_payments", failed)
		if err != nil {
			s.jobError(ctx, run, "batch", err)
			return err
		}
		if failed < s.cfg.BatchSize {
			if failed == 0 {
				schedMetrics.IncBatchDeferred(JobFailStalePayments, obsmetrics.SchedulerBatchDeferredReasonEmpty)
			}
			return nil
		}
	}
}

func (s *Scheduler) authorizeSystem(ctx context.Context, action string) error {
	if s.authzSvc == nil {
		return authorization.ErrForbidden
	}
	return s.authzSvc.Authorize(ctx, "system", authorization.ObjectScheduler, action)
}
