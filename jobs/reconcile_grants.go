package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/casnet/casnet-backend/internal/jobs"
)

// GrantReconciler deletes direct grants whose (user, tenant) pair no longer
// holds a role. rbac.Service satisfies it.
type GrantReconciler interface {
	ReconcileGrants(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReconcileGrantsJob handles TaskReconcileGrants.
type ReconcileGrantsJob struct {
	Grants  GrantReconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconcileGrantsJob initialises the reconciliation handler.
func NewReconcileGrantsJob(grants GrantReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileGrantsJob {
	return &ReconcileGrantsJob{
		Grants:  grants,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one reconciliation pass.
func (j *ReconcileGrantsJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Grants == nil {
		return errors.New("reconcile grants: handler not configured")
	}
	var payload ReconcileGrantsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskReconcileGrants)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().Add(-payload.Grace())
	removed, err := j.Grants.ReconcileGrants(ctx, cutoff)
	if err != nil {
		j.logger().Error("reconcile grants", slog.Time("cutoff", cutoff), slog.Any("error", err))
		return err
	}
	j.Metrics.AddRemoved(TaskReconcileGrants, removed)
	if removed > 0 {
		j.logger().Info("orphaned grants removed", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	}
	return nil
}

func (j *ReconcileGrantsJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *ReconcileGrantsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
