package store

import (
	"time"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// ScheduledJob is a cron-triggered workflow run.
type ScheduledJob struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	CronExpression string     `json:"cron_expression"`
	Input          string     `json:"input,omitempty"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// WorkflowFilter narrows ListWorkflows results.
type WorkflowFilter struct {
	Limit  int
	Offset int
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	WorkflowID string
	Status     *schema.RunStatus
	Limit      int
	Offset     int
}

// ScheduledJobUpdate holds optional field updates for a scheduled job.
// Nil fields are left unchanged.
type ScheduledJobUpdate struct {
	CronExpression *string
	Input          *string
	Enabled        *bool
	NextRunAt      *time.Time
	LastRunAt      *time.Time
	LastRunStatus  *string
}

// ScheduledJobFilter narrows ListScheduledJobs results.
type ScheduledJobFilter struct {
	WorkflowID  string
	EnabledOnly bool
}
