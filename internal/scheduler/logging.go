package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/sponsornet/internal/observability/context"
	obslogger "github.com/smallbiznis/sponsornet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a job across its batches.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	batches   int
	processed int
	errors    int
}

type jobRunKey struct{}

func (r *jobRun) addBatch(processed int) {
	if r == nil {
		return
	}
	r.batches++
	if processed > 0 {
		r.processed += processed
	}
}

// ensureJobRun reuses the run already in ctx so runJob and the job body log a
// single start/finish pair. owner reports whether this call created it.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return withSystemActor(ctx), run, true
}

// Audit entries written by jobs are attributed to the scheduler.
func withSystemActor(ctx context.Context) context.Context {
	return obscontext.WithActor(ctx, "system", "scheduler")
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("batches", run.batches),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errors),
	}
	if run.errors > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

// jobError counts err against the run and logs it with its retry class.
func (s *Scheduler) jobError(ctx context.Context, run *jobRun, stage string, err error) {
	if err == nil || run == nil {
		return
	}
	run.errors++
	s.logger(ctx).Error("scheduler."+stage+".failed",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}
