// Package executor drives one task through a bounded reason-act loop: at
// each step a policy either emits a tool invocation (executed through the
// gateway before the next step) or a final answer. The loop is an explicit
// state machine with a step counter, so the step limit and cancellation are
// ordinary, testable transitions.
package executor

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

const defaultMaxSteps = 6

// Decision is one step's outcome. Exactly one field is set.
type Decision struct {
	// Tool requests one gateway invocation; its result feeds the next step.
	Tool *contractx.ToolRequest
	// Final completes the task with this answer.
	Final string
	// NeedInput parks the task until the caller answers this question.
	NeedInput string
}

// StepInput is what a policy sees when deciding the next action.
type StepInput struct {
	Text        string
	Step        int
	ToolResults []contractx.ToolResult
}

// Policy is the intent-specific half of an executor: it decides, the
// executor executes. Implementations must be stateless across tasks.
type Policy interface {
	Name() string
	AllowedTools() []string
	Decide(ctx context.Context, in StepInput) (Decision, error)
}

// Option customizes Executor.
type Option func(*Executor)

func WithMaxSteps(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// Executor owns the task for the duration of processing: it alone mutates
// the task's status and conversation, persisting each transition so status
// polls observe progress.
type Executor struct {
	policy   Policy
	tools    contractx.ToolInvoker
	store    taskx.Store
	maxSteps int
	allowed  map[string]bool
}

func New(policy Policy, tools contractx.ToolInvoker, store taskx.Store, opts ...Option) (*Executor, error) {
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if tools == nil {
		return nil, errors.New("tool invoker is required")
	}
	if store == nil {
		return nil, errors.New("task store is required")
	}

	e := &Executor{
		policy:   policy,
		tools:    tools,
		store:    store,
		maxSteps: defaultMaxSteps,
		allowed:  make(map[string]bool),
	}
	for _, tool := range policy.AllowedTools() {
		e.allowed[tool] = true
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Process runs the reason-act loop for one task. The task is left in
// completed, failed, canceled, or input-required state; every transition is
// persisted before Process returns.
func (e *Executor) Process(ctx context.Context, t *taskx.Task) {
	if err := t.Accept(); err != nil {
		e.fail(ctx, t, contractx.NewFault(contractx.KindValidation, "accept task: %v", err))
		return
	}
	e.persist(ctx, t)

	text := t.UserText()
	var toolResults []contractx.ToolResult

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			e.abort(t, err)
			e.persist(context.WithoutCancel(ctx), t)
			return
		}
		if step >= e.maxSteps {
			e.fail(ctx, t, contractx.NewFault(contractx.KindStepLimit,
				"no final answer after %d steps", e.maxSteps))
			return
		}

		decision, err := e.policy.Decide(ctx, StepInput{
			Text:        text,
			Step:        step,
			ToolResults: toolResults,
		})
		if err != nil {
			e.fail(ctx, t, contractx.FaultFrom(err))
			return
		}

		switch {
		case decision.Tool != nil:
			result, err := e.invoke(ctx, t, *decision.Tool)
			if err != nil {
				if ctx.Err() != nil {
					e.abort(t, ctx.Err())
					e.persist(context.WithoutCancel(ctx), t)
					return
				}
				e.fail(ctx, t, contractx.FaultFrom(err))
				return
			}
			toolResults = append(toolResults, result)

		case decision.NeedInput != "":
			if err := t.RequireInput(decision.NeedInput); err != nil {
				e.fail(ctx, t, contractx.FaultFrom(err))
				return
			}
			e.persist(ctx, t)
			return

		default:
			if err := t.Complete(decision.Final); err != nil {
				e.fail(ctx, t, contractx.FaultFrom(err))
				return
			}
			e.persist(ctx, t)
			log.Debug().Str("task_id", t.ID).Int("steps", step+1).Msg("task completed")
			return
		}
	}
}

func (e *Executor) invoke(ctx context.Context, t *taskx.Task, req contractx.ToolRequest) (contractx.ToolResult, error) {
	if !e.allowed[req.Tool] {
		return contractx.ToolResult{}, contractx.NewFault(contractx.KindValidation,
			"tool %q is not available to the %s agent", req.Tool, e.policy.Name())
	}

	log.Debug().Str("task_id", t.ID).Str("tool", req.Tool).Msg("invoking tool")
	return e.tools.Invoke(ctx, req)
}

// abort moves a task to canceled or failed-with-timeout depending on why
// the context ended.
func (e *Executor) abort(t *taskx.Task, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		if t.Status == taskx.StatusWorking {
			_ = t.Fail(contractx.NewFault(contractx.KindTimeout, "processing deadline exceeded"))
		}
		return
	}
	_ = t.Cancel()
}

func (e *Executor) fail(ctx context.Context, t *taskx.Task, fault *contractx.Fault) {
	if err := t.Fail(fault); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("could not mark task failed")
	}
	e.persist(ctx, t)
	log.Warn().Str("task_id", t.ID).Str("kind", string(fault.Kind)).Str("reason", fault.Message).
		Msg("task failed")
}

func (e *Executor) persist(ctx context.Context, t *taskx.Task) {
	if err := e.store.Update(ctx, t); err != nil && !errors.Is(err, taskx.ErrTaskNotFound) {
		log.Error().Err(err).Str("task_id", t.ID).Msg("persist task")
	}
}
