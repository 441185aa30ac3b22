// Package classify holds the pluggable decision functions: intent
// classification for the router and urgency classification for the support
// agent. The default implementations are rule-based; an LLM-backed variant
// satisfies the same interfaces and can be swapped in by configuration.
package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
)

var customerIDPattern = regexp.MustCompile(`(?i)\bcustomer[\s_]*(?:id)?\s*[#=:]?\s*(\d+)\b|\bid\s*[#=:]?\s*(\d+)\b`)

// ExtractCustomerID pulls an explicit customer id out of free text. Returns
// zero when the text names none.
func ExtractCustomerID(text string) int64 {
	m := customerIDPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

var (
	dataSignals = []string{
		"get customer", "customer information", "customer info", "customer details",
		"look up", "lookup", "list customers", "list all", "show customer",
		"find customer", "fetch", "update email", "update phone", "update customer",
		"change email", "ticket history", "past tickets", "previous tickets",
		"customer record", "customer status", "who is",
	}
	ticketSignals = []string{
		"ticket", "help", "issue", "problem", "broken", "not working", "refund",
		"charged", "complaint", "complain", "crash", "error", "bug", "support",
		"cancel my", "doesn't work", "does not work", "stopped working",
	}
	// Context words that make a ticket request depend on the customer's
	// record, forcing a data lookup before the ticket is cut.
	contextSignals = []string{
		"account", "upgrade", "upgrading", "subscription", "plan", "renew",
		"downgrade", "membership",
	}
)

// RuleIntent is the default rule-based intent classifier.
type RuleIntent struct{}

var _ contractx.IntentClassifier = RuleIntent{}

func (RuleIntent) Classify(_ context.Context, text string) (contractx.Intent, error) {
	lowered := strings.ToLower(text)

	intent := contractx.Intent{CustomerID: ExtractCustomerID(text)}

	if containsAny(lowered, dataSignals) {
		intent.Capabilities = append(intent.Capabilities, contractx.CapabilityDataLookup)
	}
	if containsAny(lowered, ticketSignals) {
		intent.Capabilities = append(intent.Capabilities, contractx.CapabilityTicketCreation)
		intent.NeedsContext = containsAny(lowered, contextSignals)
		// A ticket about the customer's own account needs their record as
		// context even when nothing in the text asks for a lookup outright.
		if !intent.Requires(contractx.CapabilityDataLookup) &&
			intent.CustomerID > 0 && intent.NeedsContext {
			intent.Capabilities = append(
				[]contractx.Capability{contractx.CapabilityDataLookup},
				intent.Capabilities...,
			)
		}
	}

	return intent, nil
}

func containsAny(text string, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
