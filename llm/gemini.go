package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ducks/llm-tui/errors"
)

// GeminiProvider streams from the Google Gemini API through the genai SDK.
// Tool calling is not wired for this backend; it serves text turns only.
type GeminiProvider struct {
	client *genai.Client
	log    *zap.Logger
}

// NewGeminiProvider creates an adapter using the given API key.
func NewGeminiProvider(ctx context.Context, apiKey string, log *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiProvider{client: client, log: log}, nil
}

func (p *GeminiProvider) Name() ProviderID { return ProviderGemini }

func (p *GeminiProvider) IsAvailable() bool { return p.client != nil }

func (p *GeminiProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	queue, sink := NewEventQueue()
	go p.streamChat(ctx, model, messages, maxTokens, sink)
	return queue, nil
}

func (p *GeminiProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return p.Chat(ctx, model, appendToolResults(messages, results), tools, maxTokens)
}

func (p *GeminiProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	iter := p.client.ListModels(ctx)
	for {
		m, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list Gemini models")
		}
		id := strings.TrimPrefix(m.Name, "models/")
		models = append(models, ModelInfo{ID: id, Name: id, Provider: ProviderGemini})
	}
	return models, nil
}

func (p *GeminiProvider) streamChat(ctx context.Context, model string, messages []Message, maxTokens int, sink *EventSink) {
	gm := p.client.GenerativeModel(model)
	gm.SetMaxOutputTokens(int32(maxTokens))

	system, rest := splitSystemPrompt(messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(rest) == 0 {
		sink.Error("no messages to send")
		return
	}

	history := convertMessagesToGeminiContent(rest[:len(rest)-1])
	last := rest[len(rest)-1]

	chat := gm.StartChat()
	chat.History = history

	iter := chat.SendMessageStream(ctx, genai.Text(last.Content))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			sink.Error(fmt.Sprintf("API request failed: %v", err))
			return
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok && text != "" {
					sink.Text(string(text))
				}
			}
		}
	}
	sink.Done(nil)
}

func convertMessagesToGeminiContent(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}
