package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	id        ProviderID
	available bool
}

func (s *stubProvider) Name() ProviderID  { return s.id }
func (s *stubProvider) IsAvailable() bool { return s.available }
func (s *stubProvider) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef, maxTokens int) (*EventQueue, error) {
	q, sink := NewEventQueue()
	sink.Done(nil)
	return q, nil
}
func (s *stubProvider) ContinueWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, results []ToolResult, maxTokens int) (*EventQueue, error) {
	return s.Chat(ctx, model, messages, tools, maxTokens)
}
func (s *stubProvider) ListModels(ctx context.Context) ([]ModelInfo, error) { return nil, nil }

func TestRegistryLookup(t *testing.T) {
	r := &Registry{providers: map[ProviderID]Provider{}}
	r.Register(&stubProvider{id: ProviderOllama, available: true})
	r.Register(&stubProvider{id: ProviderAnthropic, available: false})

	p, err := r.Get(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, p.Name())

	_, err = r.Get(ProviderGemini)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRegistryAvailable(t *testing.T) {
	r := &Registry{providers: map[ProviderID]Provider{}}
	r.Register(&stubProvider{id: ProviderOllama, available: true})
	r.Register(&stubProvider{id: ProviderAnthropic, available: false})
	r.Register(&stubProvider{id: ProviderOpenAI, available: true})

	available := r.Available()
	assert.ElementsMatch(t, []ProviderID{ProviderOllama, ProviderOpenAI}, available)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := &Registry{providers: map[ProviderID]Provider{}}
	r.Register(&stubProvider{id: ProviderOllama, available: false})
	r.Register(&stubProvider{id: ProviderOllama, available: true})

	p, err := r.Get(ProviderOllama)
	require.NoError(t, err)
	assert.True(t, p.IsAvailable())
}
