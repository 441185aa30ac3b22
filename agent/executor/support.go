package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/classify"
	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/gateway"
)

// SupportPolicy is the support agent's decision function: it grades the
// request's urgency, optionally consults the customer's ticket history, and
// files a ticket with the derived priority.
type SupportPolicy struct {
	Urgency contractx.UrgencyClassifier
}

var _ Policy = SupportPolicy{}

func NewSupportPolicy(urgency contractx.UrgencyClassifier) SupportPolicy {
	if urgency == nil {
		urgency = classify.RuleUrgency{}
	}
	return SupportPolicy{Urgency: urgency}
}

func (SupportPolicy) Name() string { return "support" }

func (SupportPolicy) AllowedTools() []string {
	return []string{
		gateway.OpCreateTicket,
		gateway.OpFetchTicketHistory,
	}
}

func (p SupportPolicy) Decide(ctx context.Context, in StepInput) (Decision, error) {
	if created := findResult(in.ToolResults, gateway.OpCreateTicket); created != nil {
		if created.Error != nil {
			return Decision{}, created.Error
		}
		return Decision{Final: renderTicket(*created)}, nil
	}

	customerID := classify.ExtractCustomerID(in.Text)
	if customerID == 0 {
		return Decision{NeedInput: "Which customer id is this ticket for?"}, nil
	}

	// A repeat complaint is worth a history check before filing, so the
	// ticket issue can note recurrence.
	if mentionsRecurrence(in.Text) && findResult(in.ToolResults, gateway.OpFetchTicketHistory) == nil {
		return Decision{Tool: &contractx.ToolRequest{
			Tool: gateway.OpFetchTicketHistory,
			Args: map[string]any{"customer_id": customerID},
		}}, nil
	}

	priority, err := p.Urgency.Classify(ctx, in.Text)
	if err != nil {
		return Decision{}, err
	}
	if !contractx.ValidPriority(priority) {
		priority = contractx.PriorityMedium
	}

	issue := strings.TrimSpace(in.Text)
	if history := findResult(in.ToolResults, gateway.OpFetchTicketHistory); history != nil && history.Error == nil {
		if n := historyLen(history.Result); n > 0 {
			issue = fmt.Sprintf("%s (customer has %d prior tickets)", issue, n)
		}
	}

	return Decision{Tool: &contractx.ToolRequest{
		Tool: gateway.OpCreateTicket,
		Args: map[string]any{
			"customer_id": customerID,
			"issue":       issue,
			"priority":    string(priority),
		},
	}}, nil
}

func findResult(results []contractx.ToolResult, tool string) *contractx.ToolResult {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Tool == tool {
			return &results[i]
		}
	}
	return nil
}

func mentionsRecurrence(text string) bool {
	lowered := strings.ToLower(text)
	for _, s := range []string{"again", "still", "keeps", "same issue", "same problem", "second time"} {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}

func historyLen(payload any) int {
	switch v := payload.(type) {
	case []gateway.Ticket:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}

func renderTicket(result contractx.ToolResult) string {
	switch t := result.Result.(type) {
	case *gateway.Ticket:
		return fmt.Sprintf("Created ticket #%d (%s priority) for customer %d.", t.ID, t.Priority, t.CustomerID)
	case map[string]any:
		id, _ := t["id"].(float64)
		priority, _ := t["priority"].(string)
		customerID, _ := t["customer_id"].(float64)
		return fmt.Sprintf("Created ticket #%d (%s priority) for customer %d.",
			int64(id), priority, int64(customerID))
	default:
		return "Created ticket."
	}
}
