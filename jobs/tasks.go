package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileGrants removes direct grants left behind by removed memberships.
	TaskReconcileGrants = "rbac:reconcile_grants"
)

// DefaultReconcileGrace keeps freshly written grants out of a reconciliation
// pass so a grant racing its role assignment is never collected.
const DefaultReconcileGrace = 5 * time.Minute

// ReconcileGrantsPayload carries the reconciliation window.
type ReconcileGrantsPayload struct {
	GraceSeconds int `json:"grace_seconds"`
}

// Grace returns the configured grace window, falling back to the default.
func (p ReconcileGrantsPayload) Grace() time.Duration {
	if p.GraceSeconds <= 0 {
		return DefaultReconcileGrace
	}
	return time.Duration(p.GraceSeconds) * time.Second
}

// NewReconcileGrantsTask constructs an Asynq task for grant reconciliation.
func NewReconcileGrantsTask(grace time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcileGrantsPayload{GraceSeconds: int(grace / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileGrants, body), nil
}
