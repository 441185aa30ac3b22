package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/classify"
	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/gateway"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// DataPolicy is the data agent's decision function: customer lookups, list
// queries, record updates, and ticket-history reads. It never creates
// tickets; that is the support agent's job.
type DataPolicy struct{}

var _ Policy = DataPolicy{}

func (DataPolicy) Name() string { return "data" }

func (DataPolicy) AllowedTools() []string {
	return []string{
		gateway.OpFetchCustomer,
		gateway.OpListCustomers,
		gateway.OpUpdateCustomer,
		gateway.OpFetchTicketHistory,
	}
}

func (p DataPolicy) Decide(_ context.Context, in StepInput) (Decision, error) {
	// One tool call per request: once a result is in hand, answer with it.
	if len(in.ToolResults) > 0 {
		last := in.ToolResults[len(in.ToolResults)-1]
		if last.Error != nil {
			return Decision{}, last.Error
		}
		return Decision{Final: renderDataResult(last)}, nil
	}

	lowered := strings.ToLower(in.Text)
	customerID := classify.ExtractCustomerID(in.Text)

	switch {
	case wantsList(lowered):
		args := map[string]any{}
		if status := statusFilter(lowered); status != "" {
			args["status"] = status
		}
		return Decision{Tool: &contractx.ToolRequest{Tool: gateway.OpListCustomers, Args: args}}, nil

	case wantsHistory(lowered):
		if customerID == 0 {
			return Decision{NeedInput: "Which customer id should I pull the ticket history for?"}, nil
		}
		return Decision{Tool: &contractx.ToolRequest{
			Tool: gateway.OpFetchTicketHistory,
			Args: map[string]any{"customer_id": customerID},
		}}, nil

	case wantsUpdate(lowered):
		if customerID == 0 {
			return Decision{NeedInput: "Which customer id should I update?"}, nil
		}
		args := map[string]any{"customer_id": customerID}
		if email := emailPattern.FindString(in.Text); email != "" {
			args["email"] = email
		}
		if len(args) == 1 {
			return Decision{NeedInput: "What should the customer record be updated to?"}, nil
		}
		return Decision{Tool: &contractx.ToolRequest{Tool: gateway.OpUpdateCustomer, Args: args}}, nil

	default:
		if customerID == 0 {
			return Decision{NeedInput: "Which customer id should I look up?"}, nil
		}
		return Decision{Tool: &contractx.ToolRequest{
			Tool: gateway.OpFetchCustomer,
			Args: map[string]any{"customer_id": customerID},
		}}, nil
	}
}

func wantsList(text string) bool {
	return strings.Contains(text, "list") || strings.Contains(text, "all customers")
}

func wantsHistory(text string) bool {
	for _, s := range []string{"ticket history", "past tickets", "previous tickets", "earlier tickets"} {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func wantsUpdate(text string) bool {
	for _, s := range []string{"update", "change", "set the", "correct the"} {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func statusFilter(text string) string {
	switch {
	case strings.Contains(text, "disabled"):
		return "disabled"
	case strings.Contains(text, "active"):
		return "active"
	default:
		return ""
	}
}

// renderDataResult turns a tool payload into the final answer text. Payloads
// arrive as typed structs in-process and as decoded JSON over HTTP, so the
// rendering goes through JSON to treat both uniformly.
func renderDataResult(result contractx.ToolResult) string {
	body, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Sprintf("%s returned an unrenderable payload", result.Tool)
	}
	switch result.Tool {
	case gateway.OpFetchCustomer:
		return "Customer record: " + string(body)
	case gateway.OpListCustomers:
		return "Customers: " + string(body)
	case gateway.OpUpdateCustomer:
		return "Updated customer record: " + string(body)
	case gateway.OpFetchTicketHistory:
		return "Ticket history: " + string(body)
	default:
		return string(body)
	}
}
