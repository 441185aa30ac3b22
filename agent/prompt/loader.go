package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/intent.txt
	intentRaw string

	//go:embed template/urgency.txt
	urgencyRaw string

	//go:embed template/policy.txt
	policyRaw string
)

// PromptSet holds loaded prompt content. Policy takes the agent's role name
// as its single format argument.
type PromptSet struct {
	Intent  string
	Urgency string
	Policy  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Intent:  strings.TrimSpace(intentRaw),
		Urgency: strings.TrimSpace(urgencyRaw),
		Policy:  strings.TrimSpace(policyRaw),
	}
}
