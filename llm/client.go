// Package llm provides the unified streaming interface over the supported
// model backends. Each backend gets one adapter that translates the shared
// message and tool-definition types into its wire format and translates its
// response stream back into the shared Event sequence.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ducks/llm-tui/errors"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ProviderID names a backend. The set is closed; adapters are selected by
// registry lookup, never by comparing raw strings.
type ProviderID string

const (
	ProviderOllama    ProviderID = "ollama"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderBedrock   ProviderID = "bedrock"
	ProviderOpenAI    ProviderID = "openai"
	ProviderGemini    ProviderID = "gemini"
)

// ParseProviderID validates a provider name from configuration or user input.
func ParseProviderID(s string) (ProviderID, error) {
	switch ProviderID(s) {
	case ProviderOllama, ProviderAnthropic, ProviderBedrock, ProviderOpenAI, ProviderGemini:
		return ProviderID(s), nil
	}
	return "", errors.New("unknown provider %q", s)
}

// Message is the unified request message format shared by all adapters.
type Message struct {
	Role    Role
	Content string
}

// ToolDef describes one tool in the unified format. InputSchema is a JSON
// schema object; every adapter re-expresses it in its backend's native
// tool-declaration format without altering field names or required sets.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolResult is the outcome of executing (or rejecting) one tool call.
type ToolResult struct {
	ToolUseID string
	Content   string
}

// ModelInfo identifies one model a provider can serve.
type ModelInfo struct {
	ID       string
	Name     string
	Provider ProviderID
}

// Provider is the capability set every backend adapter implements. Chat and
// ContinueWithTools start background work and return immediately; events are
// drained from the returned queue without blocking.
type Provider interface {
	Name() ProviderID

	// IsAvailable reports whether the backend is configured and reachable
	// enough to attempt a request.
	IsAvailable() bool

	// Chat starts a conversation turn.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error)

	// ContinueWithTools resumes the model after tool execution, delivering
	// the tool results in whatever shape the backend expects.
	ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error)

	// ListModels enumerates the models this provider can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// appendToolResults folds tool results into the message list as one user
// turn. None of the adapters here use a dedicated tool-result channel; every
// backend resumes the model this way.
func appendToolResults(messages []Message, results []ToolResult) []Message {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Tool result for %s]:\n%s", r.ToolUseID, r.Content))
	}
	out := make([]Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, Message{Role: RoleUser, Content: strings.Join(parts, "\n\n")})
}
