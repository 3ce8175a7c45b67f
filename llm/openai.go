package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIProvider streams from the OpenAI chat completions API through the
// official SDK.
type OpenAIProvider struct {
	client *openai.Client
	apiKey string
	log    *zap.Logger
}

// NewOpenAIProvider creates an adapter using the given API key.
func NewOpenAIProvider(apiKey string, log *zap.Logger) *OpenAIProvider {
	// The SDK client is a value type; keep a pointer so availability checks
	// and calls share one instance.
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &c, apiKey: apiKey, log: log}
}

func (p *OpenAIProvider) Name() ProviderID { return ProviderOpenAI }

func (p *OpenAIProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            convertMessagesToOpenAIMessages(messages),
		Tools:               convertToolsToOpenAITools(tools),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	queue, sink := NewEventQueue()
	go p.streamChat(ctx, params, sink)
	return queue, nil
}

func (p *OpenAIProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return p.Chat(ctx, model, appendToolResults(messages, results), tools, maxTokens)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	iter := p.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		m := iter.Current()
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID, Provider: ProviderOpenAI})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// streamChat drains the SDK stream. Tool-call argument fragments arrive
// spread across chunks keyed by index; they are accumulated and emitted once
// the stream ends. This backend reports no usage on the streaming path, so
// the terminal event carries none.
func (p *OpenAIProvider) streamChat(ctx context.Context, params openai.ChatCompletionNewParams, sink *EventSink) {
	type toolCall struct {
		id   string
		name string
		args string
	}
	var calls []*toolCall
	byIndex := map[int64]*toolCall{}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			sink.Text(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			call, ok := byIndex[tc.Index]
			if !ok {
				call = &toolCall{}
				byIndex[tc.Index] = call
				calls = append(calls, call)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args += tc.Function.Arguments
		}
	}
	if err := stream.Err(); err != nil {
		sink.Error(fmt.Sprintf("API request failed: %v", err))
		return
	}

	for _, call := range calls {
		args := call.args
		if args == "" {
			args = "{}"
		}
		sink.ToolUse(call.id, call.name, json.RawMessage(args))
	}
	sink.Done(nil)
}

func convertMessagesToOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func convertToolsToOpenAITools(tools []ToolDef) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.InputSchema),
		}))
	}
	return out
}
