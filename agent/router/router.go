package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

const defaultStepTimeout = 30 * time.Second

// Option customizes Router.
type Option func(*Router)

// WithStepTimeout bounds each delegated sub-task.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.stepTimeout = d
		}
	}
}

// Router processes tasks by delegating to specialist agents. It satisfies
// the same Processor contract as an executor, so it serves the same protocol
// surface as the specialists it fronts.
type Router struct {
	classifier  contractx.IntentClassifier
	directory   *Directory
	store       taskx.Store
	stepTimeout time.Duration

	graphRunner compose.Runnable[graphInput, graphOutput]
}

func New(classifier contractx.IntentClassifier, directory *Directory, store taskx.Store, opts ...Option) (*Router, error) {
	if classifier == nil {
		return nil, errors.New("intent classifier is required")
	}
	if directory == nil {
		return nil, errors.New("agent directory is required")
	}
	if store == nil {
		return nil, errors.New("task store is required")
	}

	r := &Router{
		classifier:  classifier,
		directory:   directory,
		store:       store,
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	graphRunner, err := r.compileGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner
	return r, nil
}

// Process routes one task end to end and persists every transition.
func (r *Router) Process(ctx context.Context, t *taskx.Task) {
	if err := t.Accept(); err != nil {
		r.fail(ctx, t, contractx.NewFault(contractx.KindValidation, "accept task: %v", err))
		return
	}
	r.persist(ctx, t)

	out, err := r.graphRunner.Invoke(ctx, graphInput{Task: t})
	switch {
	case err != nil:
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			_ = t.Cancel()
			r.persist(context.WithoutCancel(ctx), t)
			return
		}
		r.fail(ctx, t, contractx.FaultFrom(err))
	case out.NeedInput != "":
		if err := t.RequireInput(out.NeedInput); err != nil {
			r.fail(ctx, t, contractx.FaultFrom(err))
			return
		}
		r.persist(ctx, t)
	default:
		if err := t.Complete(out.Reply); err != nil {
			r.fail(ctx, t, contractx.FaultFrom(err))
			return
		}
		r.persist(ctx, t)
	}
}

// dispatchPlan runs the plan in dependency waves: every step whose
// dependencies are settled runs concurrently with its peers, and a
// dependent step's instruction carries the answers it waited for.
func (r *Router) dispatchPlan(ctx context.Context, state *routeState) (*routeState, error) {
	pending := make([]Step, len(state.plan.Steps))
	copy(pending, state.plan.Steps)

	for len(pending) > 0 {
		var wave, blocked []Step
		for _, step := range pending {
			if r.depsSettled(state, step) {
				wave = append(wave, step)
			} else {
				blocked = append(blocked, step)
			}
		}
		if len(wave) == 0 {
			return nil, contractx.NewFault(contractx.KindInternal, "plan has unsatisfiable dependencies")
		}

		outcomes := make([]stepOutcome, len(wave))
		faults := make([]error, len(wave))
		var wg sync.WaitGroup
		for i, step := range wave {
			wg.Add(1)
			go func(i int, step Step) {
				defer wg.Done()
				outcomes[i], faults[i] = r.runStep(ctx, state, step)
			}(i, step)
		}
		wg.Wait()

		for i, step := range wave {
			if faults[i] != nil {
				return nil, faults[i]
			}
			state.outcomes[step.ID] = outcomes[i]
			if state.needInput == "" && outcomes[i].needInput != "" {
				state.needInput = outcomes[i].needInput
			}
		}
		if state.needInput != "" {
			// A parked step means the plan cannot settle; surface the
			// question instead of running dependents on partial context.
			return state, nil
		}
		pending = blocked
	}
	return state, nil
}

func (r *Router) depsSettled(state *routeState, step Step) bool {
	for _, dep := range step.After {
		if _, ok := state.outcomes[dep]; !ok {
			return false
		}
	}
	return true
}

// runStep delegates one step to its agent. The sub-task id is minted here so
// an in-flight delegation can be canceled remotely before the submit call
// has returned.
func (r *Router) runStep(ctx context.Context, state *routeState, step Step) (stepOutcome, error) {
	agent, ok := r.directory.AgentFor(step.Target)
	if !ok {
		return stepOutcome{}, contractx.NewFault(contractx.KindUnroutable,
			"no agent offers the %s capability", step.Target)
	}

	instruction := r.instructionFor(state, step)
	subID := uuid.NewString()

	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				r.cancelRemote(agent, step, subID)
			}
		case <-watchDone:
		}
	}()

	sub, err := agent.Submit(stepCtx, subID, instruction)
	return r.settle(step, sub, err)
}

// settle folds a delegation's outcome into the plan: optional steps absorb
// their failures, required ones abort the dispatch.
func (r *Router) settle(step Step, sub *taskx.Task, err error) (stepOutcome, error) {
	if err != nil {
		if step.Optional {
			log.Warn().Err(err).Str("step", step.ID).Msg("optional delegation failed")
			return stepOutcome{step: step, skipped: true}, nil
		}
		kind := contractx.KindUpstream
		if errors.Is(err, contractx.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			kind = contractx.KindTimeout
		}
		return stepOutcome{}, contractx.NewFault(kind, "%s agent: %v", step.Target, err)
	}

	switch sub.Status {
	case taskx.StatusCompleted:
		return stepOutcome{step: step, answer: sub.Result}, nil
	case taskx.StatusInputRequired:
		question := sub.LatestAgentText()
		if question == "" {
			question = fmt.Sprintf("The %s agent needs more information.", step.Target)
		}
		return stepOutcome{step: step, skipped: true, needInput: question}, nil
	case taskx.StatusFailed:
		reason := "delegated task failed"
		if sub.Fault != nil {
			reason = sub.Fault.Message
		}
		if step.Optional {
			log.Warn().Str("step", step.ID).Str("reason", reason).Msg("optional delegation failed")
			return stepOutcome{step: step, skipped: true}, nil
		}
		return stepOutcome{}, contractx.NewFault(contractx.KindUpstream,
			"%s agent: %s", step.Target, reason)
	default:
		return stepOutcome{}, contractx.NewFault(contractx.KindUpstream,
			"%s agent left task %s in %s", step.Target, sub.ID, sub.Status)
	}
}

// instructionFor appends the answers a step waited for as context.
func (r *Router) instructionFor(state *routeState, step Step) string {
	parts := []string{step.Instruction}
	for _, dep := range step.After {
		outcome, ok := state.outcomes[dep]
		if !ok || outcome.skipped || outcome.answer == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Context from the %s agent: %s", outcome.step.Target, outcome.answer))
	}
	return strings.Join(parts, "\n\n")
}

// cancelRemote is best effort: the sub-task may not exist yet or may already
// be done, and either way the router is no longer waiting on it.
func (r *Router) cancelRemote(agent Agent, step Step, subID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := agent.Cancel(ctx, subID); err != nil {
		log.Debug().Err(err).Str("step", step.ID).Str("sub_task", subID).Msg("remote cancel did not land")
	}
}

func (r *Router) fail(ctx context.Context, t *taskx.Task, fault *contractx.Fault) {
	if err := t.Fail(fault); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("could not mark task failed")
	}
	r.persist(ctx, t)
	log.Warn().Str("task_id", t.ID).Str("kind", string(fault.Kind)).Str("reason", fault.Message).
		Msg("routing failed")
}

func (r *Router) persist(ctx context.Context, t *taskx.Task) {
	if err := r.store.Update(ctx, t); err != nil && !errors.Is(err, taskx.ErrTaskNotFound) {
		log.Error().Err(err).Str("task_id", t.ID).Msg("persist task")
	}
}
