package contract

import "strings"

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type PartType string

const (
	PartTypeText PartType = "text"
)

// Part is one typed fragment of a Message. Only text parts are produced
// today; the envelope leaves room for structured parts later.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// Message is one conversational turn inside a task. Append-only.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

func AgentMessage(text string) Message {
	return Message{Role: RoleAgent, Parts: []Part{TextPart(text)}}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

type Capability string

const (
	CapabilityDataLookup     Capability = "data-lookup"
	CapabilityTicketCreation Capability = "ticket-creation"
)

// Intent is the output of intent classification: the capability set a request
// needs plus any entities extracted from the text. CustomerID is zero when
// the message names no customer.
type Intent struct {
	Capabilities []Capability `json:"capabilities"`
	CustomerID   int64        `json:"customer_id,omitempty"`
	// NeedsContext marks a ticket request that depends on the customer's
	// record, so the lookup must settle before the ticket is cut. When
	// false, a request needing both capabilities fans out in parallel.
	NeedsContext bool `json:"needs_context,omitempty"`
}

func (i Intent) Requires(c Capability) bool {
	for _, got := range i.Capabilities {
		if got == c {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ToolRequest names a gateway operation and its arguments.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries either a structured payload or a structured fault.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  *Fault `json:"error,omitempty"`
}

// AgentCard is the discoverable capability manifest every agent publishes at
// a well-known path. Immutable after startup.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Version      string            `json:"version,omitempty"`
	URL          string            `json:"url"`
	Capabilities AgentCapabilities `json:"capabilities"`
	Skills       []AgentSkill      `json:"skills,omitempty"`
}

type AgentCapabilities struct {
	ToolCalling bool `json:"toolCalling,omitempty"`
	Delegation  bool `json:"delegation,omitempty"`
	HumanInput  bool `json:"humanInput,omitempty"`
}

// AgentSkill describes one capability the agent offers.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}
