package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/ducks/llm-tui/errors"
	"go.uber.org/zap"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockProvider invokes Anthropic models hosted on AWS Bedrock. The call is
// single-shot: the full response is fetched in one InvokeModel and replayed
// into the event stream, which keeps the consumer protocol identical to the
// true streaming backends.
type BedrockProvider struct {
	client *bedrockruntime.Client
	log    *zap.Logger
}

// NewBedrockProvider creates an adapter using the default AWS credential
// chain.
func NewBedrockProvider(ctx context.Context, log *zap.Logger) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS configuration")
	}
	return &BedrockProvider{
		client: bedrockruntime.NewFromConfig(cfg),
		log:    log,
	}, nil
}

type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Usage *anthropicUsage `json:"usage"`
}

func (p *BedrockProvider) Name() ProviderID { return ProviderBedrock }

func (p *BedrockProvider) IsAvailable() bool { return p.client != nil }

func (p *BedrockProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	system, rest := splitSystemPrompt(messages)
	request := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         convertMessagesToAnthropicMessages(rest),
		Tools:            convertToolsToAnthropicTools(tools),
	}

	queue, sink := NewEventQueue()
	go p.invoke(ctx, model, request, sink)
	return queue, nil
}

func (p *BedrockProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return p.Chat(ctx, model, appendToolResults(messages, results), tools, maxTokens)
}

// ListModels returns the inference profiles this adapter is known to work
// with. Enumerating the account's full model catalog needs a second service
// client and IAM permissions most profiles lack.
func (p *BedrockProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ids := []string{
		"us.anthropic.claude-sonnet-4-20250514-v1:0",
		"us.anthropic.claude-3-5-sonnet-20241022-v2:0",
		"us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	models := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		models = append(models, ModelInfo{ID: id, Name: id, Provider: ProviderBedrock})
	}
	return models, nil
}

func (p *BedrockProvider) invoke(ctx context.Context, model string, request bedrockRequest, sink *EventSink) {
	body, err := json.Marshal(request)
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		sink.Error(fmt.Sprintf("Bedrock invocation failed: %v", err))
		return
	}

	var decoded bedrockResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		sink.Error(fmt.Sprintf("Parse error: %v", err))
		return
	}

	for _, block := range decoded.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				sink.Text(block.Text)
			}
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			sink.ToolUse(block.ID, block.Name, input)
		}
	}

	if decoded.Usage != nil {
		sink.Done(&Usage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
		})
		return
	}
	sink.Done(nil)
}
