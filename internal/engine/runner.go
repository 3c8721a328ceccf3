package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/internal/expressions"
	"github.com/flowlab-dev/flowlab/internal/graph"
	"github.com/flowlab-dev/flowlab/internal/logging"
	"github.com/flowlab-dev/flowlab/internal/streaming"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// DefaultStepLimit bounds a run's step count. Workflows may legitimately
// cycle, so the ceiling is the safety mechanism instead of DAG validation.
const DefaultStepLimit = 100

// RunStore persists terminal run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *schema.Run) error
}

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	StepLimit int // max steps per run, DefaultStepLimit when <= 0
}

// Runner walks a workflow graph from its start node, executing one node per
// step and routing along edges until an end node, a failure, or the step
// budget. Each call to Run owns its ExecutionContext and Run record; runs
// share no mutable state and may execute concurrently.
type Runner struct {
	executor   *NodeExecutor
	conditions *expressions.ConditionEvaluator
	store      RunStore
	hub        streaming.EventHub
	logger     *slog.Logger
	stepLimit  int
}

// NewRunner creates a Runner. The store and hub are optional: a nil store
// skips persistence and a nil hub skips event publishing.
func NewRunner(executor *NodeExecutor, conditions *expressions.ConditionEvaluator, store RunStore, hub streaming.EventHub, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.StepLimit <= 0 {
		cfg.StepLimit = DefaultStepLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		executor:   executor,
		conditions: conditions,
		store:      store,
		hub:        hub,
		logger:     logger,
		stepLimit:  cfg.StepLimit,
	}
}

// Run executes a workflow against an input and returns the terminal run
// record. The returned error is non-nil only for INVALID_WORKFLOW, which is
// detected before any step executes and may be surfaced as a request-level
// error; every runtime failure is captured in the run record instead.
func (r *Runner) Run(ctx context.Context, wf *schema.Workflow, input string, vars map[string]string) (*schema.Run, error) {
	return r.RunWithID(ctx, wf, uuid.NewString(), input, vars)
}

// RunWithID executes a workflow under a caller-assigned run ID. Callers that
// stream run events subscribe on the ID before execution starts, so no event
// is published ahead of the subscription.
func (r *Runner) RunWithID(ctx context.Context, wf *schema.Workflow, runID, input string, vars map[string]string) (*schema.Run, error) {
	run := &schema.Run{
		ID:           runID,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       schema.RunStatusPending,
		Input:        input,
		Steps:        []schema.Step{},
		StartedAt:    time.Now().UTC(),
	}

	ctx = logging.WithRunID(ctx, run.ID)
	ctx = logging.WithWorkflowID(ctx, wf.ID)

	g, err := graph.Build(wf)
	if err != nil {
		// Structural failure: the run fails before any step executes.
		r.finish(ctx, run, schema.RunStatusFailed, toFlowError(err))
		return run, err
	}

	run.Status = schema.RunStatusRunning
	r.publish(ctx, streaming.StreamEvent{
		RunID:      run.ID,
		WorkflowID: wf.ID,
		EventType:  streaming.EventRunStarted,
		Payload:    map[string]any{"input": input},
	})
	r.logger.InfoContext(ctx, "run started", slog.String("workflow_name", wf.Name))

	ec := NewExecutionContext(input, vars)
	current := g.StartNode()

	for stepCount := 0; stepCount < r.stepLimit; stepCount++ {
		nodeCtx := logging.WithNodeID(ctx, current.ID)

		r.publish(nodeCtx, streaming.StreamEvent{
			RunID:      run.ID,
			WorkflowID: wf.ID,
			NodeID:     current.ID,
			EventType:  streaming.EventNodeStarted,
		})

		started := time.Now()
		output, execErr := r.executor.Execute(nodeCtx, current, ec)
		latency := time.Since(started).Milliseconds()

		if execErr != nil {
			flowErr := toFlowError(execErr)
			run.Steps = append(run.Steps, schema.Step{
				NodeID:    current.ID,
				NodeLabel: current.Label,
				NodeType:  current.Type,
				Status:    schema.StepStatusError,
				Error:     flowErr,
				LatencyMs: latency,
			})
			r.publish(nodeCtx, streaming.StreamEvent{
				RunID:      run.ID,
				WorkflowID: wf.ID,
				NodeID:     current.ID,
				EventType:  streaming.EventNodeFailed,
				Payload:    map[string]any{"error": flowErr.Message, "code": flowErr.Code},
			})
			r.logger.ErrorContext(nodeCtx, "node failed",
				slog.String("code", flowErr.Code),
				slog.String("error", flowErr.Message))

			// No retries: the failing step is the last recorded step.
			r.finish(ctx, run, schema.RunStatusFailed, flowErr)
			return run, nil
		}

		run.Steps = append(run.Steps, schema.Step{
			NodeID:    current.ID,
			NodeLabel: current.Label,
			NodeType:  current.Type,
			Status:    schema.StepStatusCompleted,
			Output:    output,
			LatencyMs: latency,
		})
		r.publish(nodeCtx, streaming.StreamEvent{
			RunID:      run.ID,
			WorkflowID: wf.ID,
			NodeID:     current.ID,
			EventType:  streaming.EventNodeCompleted,
			Payload:    map[string]any{"output": output},
		})

		// Condition nodes leave prev_output untouched.
		if current.Type != schema.NodeTypeCondition {
			ec.PrevOutput = output
		}

		if current.Type == schema.NodeTypeEnd {
			run.FinalOutput = ec.PrevOutput
			r.finish(ctx, run, schema.RunStatusCompleted, nil)
			return run, nil
		}

		next := r.nextNode(nodeCtx, g, current, ec)
		if next == nil {
			r.finish(ctx, run, schema.RunStatusFailed,
				schema.NewErrorf(schema.ErrCodeDeadEnd, "node %s has no resolvable outgoing edge", current.ID).
					WithNode(current.ID))
			return run, nil
		}
		current = next
	}

	r.finish(ctx, run, schema.RunStatusFailed,
		schema.NewErrorf(schema.ErrCodeStepLimit, "run exceeded the %d step budget without reaching an end node", r.stepLimit))
	return run, nil
}

// nextNode resolves the next node from the current node's outgoing edges.
// Condition nodes evaluate each edge condition against prev_output in
// authored order, the first true condition wins, with the first
// unconditioned edge as fallback. Other node types take their first edge
// unconditionally; conditions on such edges are ignored.
func (r *Runner) nextNode(ctx context.Context, g *graph.Graph, current *schema.Node, ec *ExecutionContext) *schema.Node {
	edges := g.OutgoingEdges(current.ID)
	if len(edges) == 0 {
		return nil
	}

	if current.Type != schema.NodeTypeCondition {
		return g.Node(edges[0].Target)
	}

	data := ec.ExpressionData()

	for _, edge := range edges {
		if edge.Condition == "" {
			continue
		}
		if r.conditions.Evaluate(ctx, edge.Condition, ec.PrevOutput, data) {
			r.logger.DebugContext(ctx, "condition edge matched",
				slog.String("condition", edge.Condition),
				slog.String("target", edge.Target))
			return g.Node(edge.Target)
		}
	}

	// Fall back to the default edge.
	for _, edge := range edges {
		if edge.Condition == "" {
			return g.Node(edge.Target)
		}
	}

	return nil
}

// finish stamps the terminal state onto the run and persists it.
func (r *Runner) finish(ctx context.Context, run *schema.Run, status schema.RunStatus, flowErr *schema.FlowError) {
	now := time.Now().UTC()
	run.Status = status
	run.Error = flowErr
	run.CompletedAt = &now
	run.TotalLatencyMs = now.Sub(run.StartedAt).Milliseconds()

	eventType := streaming.EventRunCompleted
	payload := map[string]any{"final_output": run.FinalOutput}
	if status == schema.RunStatusFailed {
		eventType = streaming.EventRunFailed
		if flowErr != nil {
			payload = map[string]any{"error": flowErr.Message, "code": flowErr.Code}
		}
	}
	r.publish(ctx, streaming.StreamEvent{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		EventType:  eventType,
		Payload:    payload,
	})

	if status == schema.RunStatusFailed && flowErr != nil {
		r.logger.WarnContext(ctx, "run failed",
			slog.String("code", flowErr.Code),
			slog.Int("steps", len(run.Steps)))
	} else {
		r.logger.InfoContext(ctx, "run completed",
			slog.Int("steps", len(run.Steps)),
			slog.Int64("total_latency_ms", run.TotalLatencyMs))
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, run); err != nil {
			r.logger.ErrorContext(ctx, "save run failed", slog.String("error", err.Error()))
		}
	}
}

// publish sends a run event, dropping it when no hub is configured.
func (r *Runner) publish(ctx context.Context, event streaming.StreamEvent) {
	if r.hub == nil {
		return
	}
	if err := r.hub.Publish(ctx, event); err != nil {
		r.logger.DebugContext(ctx, "publish event failed", slog.String("error", err.Error()))
	}
}

// toFlowError normalizes any error into a FlowError.
func toFlowError(err error) *schema.FlowError {
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr
	}
	return schema.NewError(schema.ErrCodeInternal, err.Error()).WithCause(err)
}
