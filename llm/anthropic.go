package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider streams from the Anthropic messages API over server-sent
// events.
type AnthropicProvider struct {
	apiKey string
	apiURL string
	client *http.Client
	log    *zap.Logger
}

// NewAnthropicProvider creates an adapter using the given API key.
func NewAnthropicProvider(apiKey string, log *zap.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		apiURL: anthropicAPIURL,
		client: &http.Client{},
		log:    log,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

// anthropicStreamEvent is the union of the SSE payloads this adapter cares
// about. Unused event types decode into the zero value and are skipped.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`

	Usage *anthropicUsage `json:"usage"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (p *AnthropicProvider) Name() ProviderID { return ProviderAnthropic }

func (p *AnthropicProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *AnthropicProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	system, rest := splitSystemPrompt(messages)
	request := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  convertMessagesToAnthropicMessages(rest),
		Stream:    true,
		Tools:     convertToolsToAnthropicTools(tools),
	}

	queue, sink := NewEventQueue()
	go p.streamChat(ctx, request, sink)
	return queue, nil
}

func (p *AnthropicProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return p.Chat(ctx, model, appendToolResults(messages, results), tools, maxTokens)
}

// ListModels returns the known current models. The messages API has no
// enumeration endpoint worth depending on here.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ids := []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
	models := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		models = append(models, ModelInfo{ID: id, Name: id, Provider: ProviderAnthropic})
	}
	return models, nil
}

// streamChat decodes the SSE stream. Text deltas are forwarded as they
// arrive. Tool-use blocks accumulate input_json_delta fragments per block
// index and emit one tool event at content_block_stop. Usage is seeded by
// message_start and the output count refreshed by message_delta, so the final
// totals ride out on the terminal event.
func (p *AnthropicProvider) streamChat(ctx context.Context, request anthropicRequest, sink *EventSink) {
	body, err := json.Marshal(request)
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		sink.Error(fmt.Sprintf("Request failed: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

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

	type toolBlock struct {
		id    string
		name  string
		input strings.Builder
	}
	blocks := map[int]*toolBlock{}

	var usage Usage
	haveUsage := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.log.Debug("skipping undecodable stream event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
				usage.OutputTokens = ev.Message.Usage.OutputTokens
				haveUsage = true
			}

		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				blocks[ev.Index] = &toolBlock{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					sink.Text(ev.Delta.Text)
				}
			case "input_json_delta":
				if b, ok := blocks[ev.Index]; ok {
					b.input.WriteString(ev.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if b, ok := blocks[ev.Index]; ok {
				input := b.input.String()
				if input == "" {
					input = "{}"
				}
				sink.ToolUse(b.id, b.name, json.RawMessage(input))
				delete(blocks, ev.Index)
			}

		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
				haveUsage = true
			}

		case "message_stop":
			if haveUsage {
				sink.Done(&usage)
			} else {
				sink.Done(nil)
			}
			return

		case "error":
			msg := "unknown stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			sink.Error(msg)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		sink.Error(fmt.Sprintf("Stream error: %v", err))
		return
	}
	// Stream ended without message_stop. The turn is over either way; close
	// it out so the consumer sees exactly one terminal event.
	if haveUsage {
		sink.Done(&usage)
	} else {
		sink.Done(nil)
	}
}

// splitSystemPrompt extracts the system prompt, which the messages API takes
// as a top-level field rather than a message.
func splitSystemPrompt(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func convertMessagesToAnthropicMessages(messages []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func convertToolsToAnthropicTools(tools []ToolDef) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}
