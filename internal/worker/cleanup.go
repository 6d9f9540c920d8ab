package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner borra codigos vencidos y devuelve cuantos quito.
type Cleaner interface {
	CleanupExpiredCodes(ctx context.Context) int
}

// CleanupJob ejecuta la limpieza de codigos vencidos segun un schedule de cron.
type CleanupJob struct {
	logger  *zap.Logger
	cleaner Cleaner
	timeout time.Duration
	cron    *cron.Cron
}

func NewCleanupJob(logger *zap.Logger, cleaner Cleaner, schedule string) (*CleanupJob, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := zapCronLogger{sugar: logger.Sugar()}
	job := &CleanupJob{
		logger:  logger,
		cleaner: cleaner,
		timeout: time.Minute,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}
	if _, err := job.cron.AddFunc(schedule, func() { job.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return job, nil
}

// RunOnce ejecuta una pasada acotada por timeout.
func (j *CleanupJob) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	removed := j.cleaner.CleanupExpiredCodes(ctx)
	j.logger.Debug("cleanup pass finished", zap.Int("removed", removed))
	return removed
}

func (j *CleanupJob) Start() {
	j.cron.Start()
}

// Stop espera a que termine una pasada en curso o a que venza ctx.
func (j *CleanupJob) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
