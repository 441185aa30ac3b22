package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	promptx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/prompt"
)

// needInputMarker is the reply prefix the policy prompt reserves for turns
// that must go back to the user instead of completing the task.
const needInputMarker = "INPUT_REQUIRED:"

// LLMPolicy lets a tool-calling chat model drive the reason-act loop. It
// wraps a rule policy for its identity and tool allow-list, so swapping the
// decision function never changes which tools an agent may touch.
type LLMPolicy struct {
	base   Policy
	client *openaisdk.Client
	model  string
	system string
	tools  []openaisdk.ChatCompletionToolParam
}

var _ Policy = (*LLMPolicy)(nil)

// NewLLMPolicy builds a model-backed policy over base's tool allow-list.
// catalog supplies the tool schemas; entries outside the allow-list are
// filtered out so the model never sees a tool the executor would reject.
func NewLLMPolicy(client *openaisdk.Client, model string, base Policy, catalog []*schema.ToolInfo) (*LLMPolicy, error) {
	if client == nil {
		return nil, errors.New("openrouter client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("model name is required")
	}
	if base == nil {
		return nil, errors.New("base policy is required")
	}

	allowed := make(map[string]bool)
	for _, tool := range base.AllowedTools() {
		allowed[tool] = true
	}
	tools, err := toolParams(catalog, allowed)
	if err != nil {
		return nil, err
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("catalog has no tools for the %s agent", base.Name())
	}

	return &LLMPolicy{
		base:   base,
		client: client,
		model:  model,
		system: fmt.Sprintf(promptx.LoadPromptSet().Policy, base.Name()),
		tools:  tools,
	}, nil
}

func (p *LLMPolicy) Name() string           { return p.base.Name() }
func (p *LLMPolicy) AllowedTools() []string { return p.base.AllowedTools() }

func (p *LLMPolicy) Decide(ctx context.Context, in StepInput) (Decision, error) {
	messages := []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.SystemMessage(p.system),
		openaisdk.UserMessage(in.Text),
	}
	for _, result := range in.ToolResults {
		messages = append(messages, openaisdk.UserMessage(renderToolResult(result)))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: openaisdk.Float(0),
		Tools:       p.tools,
	})
	if err != nil {
		return Decision{}, contractx.NewFault(contractx.KindUpstream, "policy model: %v", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, contractx.NewFault(contractx.KindUpstream, "policy model returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		var args map[string]any
		if raw := call.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return Decision{}, contractx.NewFault(contractx.KindUpstream,
					"policy model sent invalid arguments for %s: %v", call.Function.Name, err)
			}
		}
		return Decision{Tool: &contractx.ToolRequest{Tool: call.Function.Name, Args: args}}, nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return Decision{}, contractx.NewFault(contractx.KindUpstream, "policy model sent an empty reply")
	}
	if question, ok := strings.CutPrefix(content, needInputMarker); ok {
		return Decision{NeedInput: strings.TrimSpace(question)}, nil
	}
	return Decision{Final: content}, nil
}

func renderToolResult(result contractx.ToolResult) string {
	if result.Error != nil {
		return fmt.Sprintf("Tool %s failed: %s", result.Tool, result.Error.Error())
	}
	body, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Sprintf("Tool %s returned: %v", result.Tool, result.Result)
	}
	return fmt.Sprintf("Tool %s returned: %s", result.Tool, body)
}

// toolParams converts catalog schemas into the chat API's tool definitions,
// keeping only the allow-listed operations.
func toolParams(catalog []*schema.ToolInfo, allowed map[string]bool) ([]openaisdk.ChatCompletionToolParam, error) {
	var tools []openaisdk.ChatCompletionToolParam
	for _, info := range catalog {
		if info == nil || !allowed[info.Name] {
			continue
		}
		def := openaisdk.FunctionDefinitionParam{
			Name:        info.Name,
			Description: openaisdk.String(info.Desc),
		}
		if info.ParamsOneOf != nil {
			v3, err := info.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			raw, err := json.Marshal(v3)
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			var params map[string]any
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			def.Parameters = openaisdk.FunctionParameters(params)
		}
		tools = append(tools, openaisdk.ChatCompletionToolParam{
			Type:     "function",
			Function: def,
		})
	}
	return tools, nil
}
