package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ducks/llm-tui/errors"
	"go.uber.org/zap"
)

// OllamaProvider talks to a local Ollama server over its line-delimited JSON
// chat protocol.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewOllamaProvider creates an adapter for the server at baseURL.
func NewOllamaProvider(baseURL string, log *zap.Logger) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{},
		log:     log,
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message *struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	Done bool `json:"done"`
	// Usage fields reported by newer protocol revisions on the final line.
	PromptEvalCount *int `json:"prompt_eval_count"`
	EvalCount       *int `json:"eval_count"`
}

func (p *OllamaProvider) Name() ProviderID { return ProviderOllama }

// IsAvailable probes the server's tags endpoint with a short timeout.
func (p *OllamaProvider) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *OllamaProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	request := ollamaChatRequest{
		Model:    model,
		Messages: convertMessagesToOllamaMessages(messages),
		Stream:   true,
		Tools:    convertToolsToOllamaTools(tools),
	}

	queue, sink := NewEventQueue()
	go p.streamChat(ctx, request, sink)
	return queue, nil
}

func (p *OllamaProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return p.Chat(ctx, model, appendToolResults(messages, results), tools, maxTokens)
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build model list request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list Ollama models")
	}
	defer resp.Body.Close()

	var decoded struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Ollama model list")
	}

	models := make([]ModelInfo, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		models = append(models, ModelInfo{ID: m.Name, Name: m.Name, Provider: ProviderOllama})
	}
	return models, nil
}

// streamChat performs the blocking request on a worker goroutine, decoding
// one JSON object per line. Tool calls in a line are emitted before that
// line's text, each with a synthesized id since this protocol does not
// supply one.
func (p *OllamaProvider) streamChat(ctx context.Context, request ollamaChatRequest, sink *EventSink) {
	body, err := json.Marshal(request)
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		sink.Error(fmt.Sprintf("API request failed: %s", string(errBody)))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	toolIDCounter := 0

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var decoded ollamaChatResponse
		if err := json.Unmarshal(line, &decoded); err != nil {
			sink.Error(fmt.Sprintf("Parse error: %v", err))
			return
		}

		if decoded.Message != nil {
			for _, tc := range decoded.Message.ToolCalls {
				toolIDCounter++
				sink.ToolUse(fmt.Sprintf("ollama-tool-%d", toolIDCounter), tc.Function.Name, tc.Function.Arguments)
			}
			if decoded.Message.Content != "" {
				sink.Text(decoded.Message.Content)
			}
		}

		if decoded.Done {
			sink.Done(ollamaUsage(decoded))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		sink.Error(fmt.Sprintf("Stream error: %v", err))
		return
	}
	// Stream ended without done=true; treat the truncated response as a
	// protocol failure so the turn still terminates.
	p.log.Warn("ollama stream ended without done marker")
	sink.Error("Stream ended unexpectedly")
}

func ollamaUsage(resp ollamaChatResponse) *Usage {
	if resp.PromptEvalCount == nil && resp.EvalCount == nil {
		return nil
	}
	u := &Usage{}
	if resp.PromptEvalCount != nil {
		u.InputTokens = *resp.PromptEvalCount
	}
	if resp.EvalCount != nil {
		u.OutputTokens = *resp.EvalCount
	}
	return u
}

func convertMessagesToOllamaMessages(messages []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func convertToolsToOllamaTools(tools []ToolDef) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}
