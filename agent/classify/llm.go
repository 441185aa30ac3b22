package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	promptx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/prompt"
	openrouterx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/openrouter"
)

// LLMClassifier backs both classifier interfaces with a chat model. It keeps
// the exact contract of the rule-based classifiers so the router and support
// executor never see the difference.
type LLMClassifier struct {
	chatModel model.ToolCallingChatModel
	prompts   promptx.PromptSet
}

var (
	_ contractx.IntentClassifier  = (*LLMClassifier)(nil)
	_ contractx.UrgencyClassifier = urgencyAdapter{}
)

func NewLLMClassifier(ctx context.Context, builder openrouterx.LLMBuilder) (*LLMClassifier, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: llm builder is required", contractx.ErrValidation)
	}
	m, err := builder.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("build classifier model: %w", err)
	}
	return &LLMClassifier{chatModel: m, prompts: promptx.LoadPromptSet()}, nil
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (contractx.Intent, error) {
	raw, err := c.generate(ctx, c.prompts.Intent, text)
	if err != nil {
		return contractx.Intent{}, err
	}

	var out struct {
		Capabilities []string `json:"capabilities"`
		CustomerID   int64    `json:"customer_id"`
		NeedsContext bool     `json:"needs_context"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return contractx.Intent{}, fmt.Errorf("%w: intent response is not valid JSON: %v", contractx.ErrValidation, err)
	}

	intent := contractx.Intent{CustomerID: out.CustomerID, NeedsContext: out.NeedsContext}
	for _, name := range out.Capabilities {
		switch contractx.Capability(strings.TrimSpace(name)) {
		case contractx.CapabilityDataLookup:
			intent.Capabilities = append(intent.Capabilities, contractx.CapabilityDataLookup)
		case contractx.CapabilityTicketCreation:
			intent.Capabilities = append(intent.Capabilities, contractx.CapabilityTicketCreation)
		}
	}
	if intent.CustomerID == 0 {
		intent.CustomerID = ExtractCustomerID(text)
	}
	return intent, nil
}

// ClassifyUrgency is exposed through an adapter because both interfaces use
// the method name Classify.
func (c *LLMClassifier) ClassifyUrgency(ctx context.Context, text string) (contractx.Priority, error) {
	raw, err := c.generate(ctx, c.prompts.Urgency, text)
	if err != nil {
		return "", err
	}

	var out struct {
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("%w: urgency response is not valid JSON: %v", contractx.ErrValidation, err)
	}

	priority := contractx.Priority(strings.ToLower(strings.TrimSpace(out.Priority)))
	if !contractx.ValidPriority(priority) {
		return "", fmt.Errorf("%w: urgency response priority=%q", contractx.ErrValidation, out.Priority)
	}
	return priority, nil
}

// Urgency adapts the classifier to the UrgencyClassifier interface.
func (c *LLMClassifier) Urgency() contractx.UrgencyClassifier {
	return urgencyAdapter{c}
}

type urgencyAdapter struct {
	c *LLMClassifier
}

func (a urgencyAdapter) Classify(ctx context.Context, text string) (contractx.Priority, error) {
	return a.c.ClassifyUrgency(ctx, text)
}

func (c *LLMClassifier) generate(ctx context.Context, system, text string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(text),
	}
	resp, err := c.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("classifier model invoke: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty classifier response", contractx.ErrValidation)
	}
	return extractJSON(resp.Content), nil
}

// extractJSON tolerates models that wrap the JSON object in code fences or
// surrounding prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
