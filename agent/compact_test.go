package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducks/llm-tui/llm"
	"github.com/ducks/llm-tui/session"
)

// slowProvider emits its script from a goroutine with a delay, to prove the
// compaction path really blocks on the stream instead of polling past it.
type slowProvider struct {
	fakeProvider
	delay time.Duration
}

func (s *slowProvider) Chat(ctx context.Context, model string, messages []llm.Message, defs []llm.ToolDef, maxTokens int) (*llm.EventQueue, error) {
	s.calls = append(s.calls, fakeCall{messages: messages, maxTokens: maxTokens})
	script := s.scripts[0]
	s.scripts = s.scripts[1:]

	queue, sink := llm.NewEventQueue()
	go func() {
		time.Sleep(s.delay)
		for _, ev := range script {
			switch ev.Type {
			case llm.EventText:
				sink.Text(ev.Text)
			case llm.EventDone:
				sink.Done(ev.Usage)
			case llm.EventError:
				sink.Error(ev.Err)
			}
		}
	}()
	return queue, nil
}

// fillHistory appends n user messages of a fixed token weight each.
func fillHistory(sess *session.Session, n, tokensEach int) {
	for i := 0; i < n; i++ {
		sess.Append(session.Message{
			Role:       llm.RoleUser,
			Content:    fmt.Sprintf("message %d", i),
			TokenCount: tokensEach,
		})
	}
}

func TestCompactionThreshold(t *testing.T) {
	// window=4096, threshold=0.75: 3200 tokens triggers, 3000 does not.
	cases := []struct {
		messages int
		each     int
		compacts bool
	}{
		{16, 200, true},  // 3200 total
		{15, 200, false}, // 3000 total
	}
	for _, tc := range cases {
		fake := &fakeProvider{id: llm.ProviderOllama, scripts: [][]llm.Event{
			{text("summary of the early conversation"), done()},
		}}
		engine, sess, _ := newTestEngine(t, fake)
		fillHistory(sess, tc.messages, tc.each)

		require.NoError(t, engine.compactIfNeeded(context.Background()))

		total := tc.messages * tc.each
		if tc.compacts {
			assert.Len(t, fake.calls, 1, "total %d should trigger compaction", total)
		} else {
			assert.Empty(t, fake.calls, "total %d should not trigger compaction", total)
		}
	}
}

func TestCompactionRangeKeepsRecentMessages(t *testing.T) {
	fake := &fakeProvider{id: llm.ProviderOllama, scripts: [][]llm.Event{
		{text("early summary"), done()},
	}}
	engine, sess, _ := newTestEngine(t, fake)

	// 15 compactable messages, keep_recent=10: indices 0-4 get compacted.
	fillHistory(sess, 15, 300)

	require.NoError(t, engine.compactIfNeeded(context.Background()))

	for i := 0; i < 5; i++ {
		assert.True(t, sess.Messages[i].ToolsExecuted, "index %d should be compacted", i)
	}
	for i := 5; i < 15; i++ {
		assert.False(t, sess.Messages[i].ToolsExecuted, "index %d should be kept", i)
	}

	last := sess.Messages[len(sess.Messages)-1]
	assert.True(t, last.IsSummary)
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Equal(t, "[Summary of 5 messages]: early summary", last.Content)

	// The summarization prompt carried the compacted excerpt.
	require.Len(t, fake.calls, 1)
	assert.Equal(t, summaryMaxTokens, fake.calls[0].maxTokens)
	require.Len(t, fake.calls[0].messages, 1)
	assert.Contains(t, fake.calls[0].messages[0].Content, "[user]: message 0")
	assert.Contains(t, fake.calls[0].messages[0].Content, "[user]: message 4")
	assert.NotContains(t, fake.calls[0].messages[0].Content, "[user]: message 5")
}

func TestCompactionSkipsWhenTooFewCompactable(t *testing.T) {
	fake := &fakeProvider{id: llm.ProviderOllama}
	engine, sess, _ := newTestEngine(t, fake)

	// Over the token threshold but only 8 compactable messages.
	fillHistory(sess, 8, 500)

	require.NoError(t, engine.compactIfNeeded(context.Background()))
	assert.Empty(t, fake.calls)
	for _, m := range sess.Messages {
		assert.False(t, m.ToolsExecuted)
		assert.False(t, m.IsSummary)
	}
}

func TestCompactionIgnoresSummariesAndExecuted(t *testing.T) {
	fake := &fakeProvider{id: llm.ProviderOllama}
	engine, sess, _ := newTestEngine(t, fake)

	// Plenty of tokens, but most messages are already shadowed or are
	// summaries; only 9 remain compactable.
	fillHistory(sess, 9, 500)
	for i := 0; i < 6; i++ {
		sess.Append(session.Message{Role: llm.RoleUser, Content: "shadowed", ToolsExecuted: true, TokenCount: 400})
	}
	sess.Append(session.Message{Role: llm.RoleSystem, Content: "[Summary of 3 messages]: older stuff", IsSummary: true, TokenCount: 50})

	require.NoError(t, engine.compactIfNeeded(context.Background()))
	assert.Empty(t, fake.calls)
}

func TestCompactionFailureLeavesHistoryUntouched(t *testing.T) {
	fake := &fakeProvider{id: llm.ProviderOllama, scripts: [][]llm.Event{
		{failure("rate limited")},
	}}
	engine, sess, _ := newTestEngine(t, fake)
	fillHistory(sess, 15, 300)

	err := engine.compactIfNeeded(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	for _, m := range sess.Messages {
		assert.False(t, m.ToolsExecuted)
		assert.False(t, m.IsSummary)
	}
}

func TestCompactionBlocksUntilSummaryArrives(t *testing.T) {
	slow := &slowProvider{
		fakeProvider: fakeProvider{id: llm.ProviderOllama, scripts: [][]llm.Event{
			{text("delayed summary"), done()},
		}},
		delay: 50 * time.Millisecond,
	}
	engine, sess, _ := newTestEngine(t, slow)
	fillHistory(sess, 15, 300)

	start := time.Now()
	require.NoError(t, engine.compactIfNeeded(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "compaction waits for the full stream")

	last := sess.Messages[len(sess.Messages)-1]
	assert.Equal(t, "[Summary of 5 messages]: delayed summary", last.Content)
}
