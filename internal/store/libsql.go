package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return applySchema(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// workflowDefinition is the JSON shape stored in the definition column.
type workflowDefinition struct {
	Nodes []schema.Node `json:"nodes"`
	Edges []schema.Edge `json:"edges"`
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	def, err := json.Marshal(workflowDefinition{Nodes: wf.Nodes, Edges: wf.Edges})
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.Description), string(def),
		timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var description sql.NullString
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, definition, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &description, &defJSON, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	var def workflowDefinition
	if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	wf.Nodes = def.Nodes
	wf.Edges = def.Edges
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	def, err := json.Marshal(workflowDefinition{Nodes: wf.Nodes, Edges: wf.Edges})
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, definition = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		wf.Name, nullStr(wf.Description), string(def), wf.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	query := `SELECT id, name, description, definition, created_at, updated_at FROM workflows ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf := &schema.Workflow{}
		var description sql.NullString
		var defJSON string
		if err := rows.Scan(&wf.ID, &wf.Name, &description, &defJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		wf.Description = description.String
		var def workflowDefinition
		if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		wf.Nodes = def.Nodes
		wf.Edges = def.Edges
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Runs ---

func (s *LibSQLStore) SaveRun(ctx context.Context, run *schema.Run) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	var errJSON any
	if run.Error != nil {
		b, err := json.Marshal(run.Error)
		if err != nil {
			return fmt.Errorf("marshal run error: %w", err)
		}
		errJSON = string(b)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, workflow_name, status, input, final_output, error, steps, total_latency_ms, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, final_output=excluded.final_output, error=excluded.error,
		   steps=excluded.steps, total_latency_ms=excluded.total_latency_ms, completed_at=excluded.completed_at`,
		run.ID, run.WorkflowID, nullStr(run.WorkflowName), string(run.Status), run.Input,
		nullStr(run.FinalOutput), errJSON, string(steps), run.TotalLatencyMs,
		timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, workflow_name, status, input, final_output, error, steps, total_latency_ms, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storeNotFound("run", id)
	}
	return runs[0], nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.Run, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, workflow_id, workflow_name, status, input, final_output, error, steps, total_latency_ms, started_at, completed_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func scanRuns(rows *sql.Rows) ([]*schema.Run, error) {
	var runs []*schema.Run
	for rows.Next() {
		run := &schema.Run{}
		var (
			workflowName, finalOutput, errJSON sql.NullString
			stepsJSON                          string
			status                             string
			completedAt                        sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.WorkflowID, &workflowName, &status, &run.Input,
			&finalOutput, &errJSON, &stepsJSON, &run.TotalLatencyMs, &run.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		run.WorkflowName = workflowName.String
		run.Status = schema.RunStatus(status)
		run.FinalOutput = finalOutput.String
		if errJSON.Valid && errJSON.String != "" {
			run.Error = &schema.FlowError{}
			if err := json.Unmarshal([]byte(errJSON.String), run.Error); err != nil {
				return nil, fmt.Errorf("unmarshal run error: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Tools ---

func (s *LibSQLStore) CreateTool(ctx context.Context, tool *schema.Tool) error {
	headers, err := marshalMapOrNil(tool.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	inputSchema, err := marshalAnyMapOrNil(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input_schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tools (id, name, description, endpoint, method, enabled, headers, input_schema, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tool.ID, tool.Name, nullStr(tool.Description), tool.Endpoint, nullStr(tool.Method),
		boolInt(tool.Enabled), headers, inputSchema, timeOrNow(tool.CreatedAt), timeOrNow(tool.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetTool(ctx context.Context, id string) (*schema.Tool, error) {
	tool := &schema.Tool{}
	var description, method, headers, inputSchema sql.NullString
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, endpoint, method, enabled, headers, input_schema, created_at, updated_at FROM tools WHERE id = ?`, id,
	).Scan(&tool.ID, &tool.Name, &description, &tool.Endpoint, &method, &enabled, &headers, &inputSchema, &tool.CreatedAt, &tool.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("tool", id)
	}
	if err != nil {
		return nil, err
	}
	tool.Description = description.String
	tool.Method = method.String
	tool.Enabled = enabled != 0
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &tool.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if inputSchema.Valid && inputSchema.String != "" {
		if err := json.Unmarshal([]byte(inputSchema.String), &tool.InputSchema); err != nil {
			return nil, fmt.Errorf("unmarshal input_schema: %w", err)
		}
	}
	return tool, nil
}

func (s *LibSQLStore) UpdateTool(ctx context.Context, tool *schema.Tool) error {
	headers, err := marshalMapOrNil(tool.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	inputSchema, err := marshalAnyMapOrNil(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input_schema: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tools SET name = ?, description = ?, endpoint = ?, method = ?, enabled = ?, headers = ?, input_schema = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tool.Name, nullStr(tool.Description), tool.Endpoint, nullStr(tool.Method), boolInt(tool.Enabled), headers, inputSchema, tool.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool", tool.ID)
}

func (s *LibSQLStore) ListTools(ctx context.Context) ([]*schema.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, endpoint, method, enabled, headers, input_schema, created_at, updated_at FROM tools ORDER BY name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*schema.Tool
	for rows.Next() {
		tool := &schema.Tool{}
		var description, method, headers, inputSchema sql.NullString
		var enabled int
		if err := rows.Scan(&tool.ID, &tool.Name, &description, &tool.Endpoint, &method, &enabled, &headers, &inputSchema, &tool.CreatedAt, &tool.UpdatedAt); err != nil {
			return nil, err
		}
		tool.Description = description.String
		tool.Method = method.String
		tool.Enabled = enabled != 0
		if headers.Valid && headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &tool.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal headers: %w", err)
			}
		}
		if inputSchema.Valid && inputSchema.String != "" {
			if err := json.Unmarshal([]byte(inputSchema.String), &tool.InputSchema); err != nil {
				return nil, fmt.Errorf("unmarshal input_schema: %w", err)
			}
		}
		list = append(list, tool)
	}
	return list, rows.Err()
}

func (s *LibSQLStore) DeleteTool(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "tool", id)
}

// --- Agents ---

func (s *LibSQLStore) CreateAgent(ctx context.Context, agent *schema.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, model, system_prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, nullStr(agent.Description), nullStr(agent.Model), nullStr(agent.SystemPrompt),
		timeOrNow(agent.CreatedAt), timeOrNow(agent.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*schema.Agent, error) {
	agent := &schema.Agent{}
	var description, model, systemPrompt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, model, system_prompt, created_at, updated_at FROM agents WHERE id = ?`, id,
	).Scan(&agent.ID, &agent.Name, &description, &model, &systemPrompt, &agent.CreatedAt, &agent.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	if err != nil {
		return nil, err
	}
	agent.Description = description.String
	agent.Model = model.String
	agent.SystemPrompt = systemPrompt.String
	return agent, nil
}

func (s *LibSQLStore) UpdateAgent(ctx context.Context, agent *schema.Agent) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, description = ?, model = ?, system_prompt = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		agent.Name, nullStr(agent.Description), nullStr(agent.Model), nullStr(agent.SystemPrompt), agent.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", agent.ID)
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*schema.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, model, system_prompt, created_at, updated_at FROM agents ORDER BY name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*schema.Agent
	for rows.Next() {
		agent := &schema.Agent{}
		var description, model, systemPrompt sql.NullString
		if err := rows.Scan(&agent.ID, &agent.Name, &description, &model, &systemPrompt, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
			return nil, err
		}
		agent.Description = description.String
		agent.Model = model.String
		agent.SystemPrompt = systemPrompt.String
		list = append(list, agent)
	}
	return list, rows.Err()
}

func (s *LibSQLStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, workflow_id, cron_expression, input, enabled, next_run_at, last_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkflowID, job.CronExpression, nullStr(job.Input), job.Enabled,
		nullTime(job.NextRunAt), nullTime(job.LastRunAt), nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var input, lastRunStatus sql.NullString
	var nextRunAt, lastRunAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, cron_expression, input, enabled, next_run_at, last_run_at, last_run_status, created_at FROM scheduled_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.WorkflowID, &job.CronExpression, &input, &job.Enabled, &nextRunAt, &lastRunAt, &lastRunStatus, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled_job", id)
	}
	if err != nil {
		return nil, err
	}
	job.Input = input.String
	job.LastRunStatus = lastRunStatus.String
	if nextRunAt.Valid {
		job.NextRunAt = &nextRunAt.Time
	}
	if lastRunAt.Valid {
		job.LastRunAt = &lastRunAt.Time
	}
	return job, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.Input != nil {
		sets = append(sets, "input = ?")
		args = append(args, *update.Input)
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.LastRunStatus != nil {
		sets = append(sets, "last_run_status = ?")
		args = append(args, *update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.EnabledOnly {
		where = append(where, "enabled = 1")
	}

	query := `SELECT id, workflow_id, cron_expression, input, enabled, next_run_at, last_run_at, last_run_status, created_at FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job := &ScheduledJob{}
		var input, lastRunStatus sql.NullString
		var nextRunAt, lastRunAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.WorkflowID, &job.CronExpression, &input, &job.Enabled, &nextRunAt, &lastRunAt, &lastRunStatus, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.Input = input.String
		job.LastRunStatus = lastRunStatus.String
		if nextRunAt.Valid {
			job.NextRunAt = &nextRunAt.Time
		}
		if lastRunAt.Valid {
			job.LastRunAt = &lastRunAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrNil(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalAnyMapOrNil(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var _ Store = (*LibSQLStore)(nil)
