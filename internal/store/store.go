package store

import (
	"context"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Runs
	SaveRun(ctx context.Context, run *schema.Run) error
	GetRun(ctx context.Context, id string) (*schema.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*schema.Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Tools
	CreateTool(ctx context.Context, tool *schema.Tool) error
	GetTool(ctx context.Context, id string) (*schema.Tool, error)
	UpdateTool(ctx context.Context, tool *schema.Tool) error
	ListTools(ctx context.Context) ([]*schema.Tool, error)
	DeleteTool(ctx context.Context, id string) error

	// Agents
	CreateAgent(ctx context.Context, agent *schema.Agent) error
	GetAgent(ctx context.Context, id string) (*schema.Agent, error)
	UpdateAgent(ctx context.Context, agent *schema.Agent) error
	ListAgents(ctx context.Context) ([]*schema.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Scheduled Jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
