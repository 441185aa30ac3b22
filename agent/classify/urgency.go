package classify

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

var (
	highSignals = []string{
		"immediately", "urgent", "asap", "right now", "emergency", "critical",
		"angry", "furious", "unacceptable", "outraged", "terrible", "worst",
		"charged twice", "double charge", "charged me twice",
		"down", "outage", "cannot access", "can't access", "locked out",
		"!!!",
	}
	// Calm markers cap a request at medium no matter what it asks for.
	calmSignals = []string{
		"no rush", "not urgent", "when you get a chance", "whenever you can",
		"no hurry",
	}
	lowSignals = []string{
		"feature request", "feature", "suggestion", "suggest", "would be nice",
		"wondering", "curious", "how do i", "how to", "question about",
		"informational",
	}
)

// RuleUrgency derives a ticket priority from the tone of the request text:
// strong dissatisfaction or urgency wins high, informational phrasing wins
// low, and an explicit but calm request lands on medium.
type RuleUrgency struct{}

var _ contractx.UrgencyClassifier = RuleUrgency{}

func (RuleUrgency) Classify(_ context.Context, text string) (contractx.Priority, error) {
	lowered := strings.ToLower(text)

	calm := containsAny(lowered, calmSignals)
	if !calm && containsAny(lowered, highSignals) {
		return contractx.PriorityHigh, nil
	}
	if containsAny(lowered, lowSignals) {
		return contractx.PriorityLow, nil
	}
	return contractx.PriorityMedium, nil
}
