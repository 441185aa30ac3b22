package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

type graphInput struct {
	Task *taskx.Task
}

type graphOutput struct {
	Reply     string
	NeedInput string
}

// routeState threads one request through the pipeline nodes.
type routeState struct {
	task      *taskx.Task
	text      string
	intent    contractx.Intent
	plan      Plan
	outcomes  map[string]stepOutcome
	answers   []string
	needInput string
}

// stepOutcome is one delegation's settled result.
type stepOutcome struct {
	step      Step
	answer    string
	skipped   bool
	needInput string
}

func (r *Router) compileGraph(ctx context.Context) (compose.Runnable[graphInput, graphOutput], error) {
	graph := compose.NewGraph[graphInput, graphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in graphInput) (*routeState, error) {
			return validateRequest(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("classify_intent",
		compose.InvokableLambda(func(ctx context.Context, in *routeState) (*routeState, error) {
			return classifyIntent(ctx, in, r.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_intent: %w", err)
	}

	if err := graph.AddLambdaNode("build_plan",
		compose.InvokableLambda(func(ctx context.Context, in *routeState) (*routeState, error) {
			return buildPlan(in, r.directory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node build_plan: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_plan",
		compose.InvokableLambda(func(ctx context.Context, in *routeState) (*routeState, error) {
			return r.dispatchPlan(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_plan: %w", err)
	}

	if err := graph.AddLambdaNode("aggregate_results",
		compose.InvokableLambda(func(ctx context.Context, in *routeState) (*routeState, error) {
			return aggregateResults(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node aggregate_results: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *routeState) (graphOutput, error) {
			return finalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "classify_intent"},
		{"classify_intent", "build_plan"},
		{"build_plan", "dispatch_plan"},
		{"dispatch_plan", "aggregate_results"},
		{"aggregate_results", "finalize_reply"},
		{"finalize_reply", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("router.handle_task"))
	if err != nil {
		return nil, fmt.Errorf("compile router graph: %w", err)
	}
	return runner, nil
}

func validateRequest(in graphInput) (*routeState, error) {
	if in.Task == nil {
		return nil, contractx.NewFault(contractx.KindValidation, "no task to route")
	}
	text := strings.TrimSpace(in.Task.UserText())
	if text == "" {
		return nil, contractx.NewFault(contractx.KindValidation, "request has no text to route")
	}
	return &routeState{
		task:     in.Task,
		text:     text,
		outcomes: make(map[string]stepOutcome),
	}, nil
}

func classifyIntent(ctx context.Context, state *routeState, classifier contractx.IntentClassifier) (*routeState, error) {
	intent, err := classifier.Classify(ctx, state.text)
	if err != nil {
		return nil, contractx.NewFault(contractx.KindUpstream, "classify intent: %v", err)
	}
	state.intent = intent
	return state, nil
}

// buildPlan maps the intent to delegation steps and confirms each target
// capability has a discovered agent.
func buildPlan(state *routeState, directory *Directory) (*routeState, error) {
	plan, err := BuildPlan(state.intent, state.text)
	if err != nil {
		return nil, err
	}
	for _, step := range plan.Steps {
		if _, ok := directory.AgentFor(step.Target); !ok {
			return nil, contractx.NewFault(contractx.KindUnroutable,
				"no agent offers the %s capability", step.Target)
		}
	}
	state.plan = plan
	return state, nil
}

// aggregateResults collects the settled answers in plan order, so the reply
// reads lookup-then-ticket regardless of which delegation finished first.
func aggregateResults(state *routeState) (*routeState, error) {
	if state.needInput != "" {
		return state, nil
	}
	for _, step := range state.plan.Steps {
		outcome, ok := state.outcomes[step.ID]
		if !ok || outcome.skipped || outcome.answer == "" {
			continue
		}
		state.answers = append(state.answers, outcome.answer)
	}
	if len(state.answers) == 0 {
		return nil, contractx.NewFault(contractx.KindInternal, "plan produced no results")
	}
	return state, nil
}

func finalizeReply(state *routeState) (graphOutput, error) {
	if state.needInput != "" {
		return graphOutput{NeedInput: state.needInput}, nil
	}
	return graphOutput{Reply: strings.Join(state.answers, "\n\n")}, nil
}
