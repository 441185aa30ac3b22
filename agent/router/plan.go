// Package router is the front-door agent: it classifies an incoming request,
// builds a delegation plan over the specialist agents it has discovered, runs
// the plan, and folds the specialists' answers into one reply. It owns no
// tools of its own.
package router

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

// Step is one delegation in a plan. After names the step ids whose results
// must be available before this step runs; their answers are folded into the
// instruction as context.
type Step struct {
	ID          string
	Target      contractx.Capability
	Instruction string
	After       []string
	Optional    bool
}

// Plan is an ordered set of delegations. Steps without dependencies run in
// parallel.
type Plan struct {
	Steps []Step
}

func (p Plan) Empty() bool { return len(p.Steps) == 0 }

func (p Plan) step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// BuildPlan maps a classified intent onto delegation steps. When the ticket
// needs the customer's record as context the lookup must settle first and
// its result feeds the ticket step; independent steps carry no dependencies
// and run in parallel. Anything unclassifiable is an unroutable fault.
func BuildPlan(intent contractx.Intent, text string) (Plan, error) {
	text = strings.TrimSpace(text)
	var plan Plan

	if intent.Requires(contractx.CapabilityDataLookup) {
		instruction := text
		if intent.CustomerID > 0 {
			instruction = fmt.Sprintf("Fetch the record for customer id %d. Request: %s", intent.CustomerID, text)
		}
		plan.Steps = append(plan.Steps, Step{
			ID:          "data",
			Target:      contractx.CapabilityDataLookup,
			Instruction: instruction,
		})
	}

	if intent.Requires(contractx.CapabilityTicketCreation) {
		step := Step{
			ID:          "support",
			Target:      contractx.CapabilityTicketCreation,
			Instruction: text,
		}
		if _, ok := plan.step("data"); ok && intent.NeedsContext {
			step.After = []string{"data"}
		}
		plan.Steps = append(plan.Steps, step)
	}

	if plan.Empty() {
		return Plan{}, contractx.NewFault(contractx.KindUnroutable,
			"no capability matches this request; try asking about customer data or describing a support issue")
	}
	return plan, nil
}
