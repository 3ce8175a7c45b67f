package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ducks/llm-tui/errors"
	"github.com/ducks/llm-tui/llm"
	"github.com/ducks/llm-tui/session"
)

const summaryMaxTokens = 500

const summaryInstruction = "Summarize the following conversation excerpt concisely, " +
	"preserving key facts, decisions, and open questions. Respond with the summary only."

// compactIfNeeded summarizes older history when the estimated token total
// crosses the configured fraction of the context window. The summarization
// call is deliberately blocking; nothing else can run mid-compaction.
func (e *Engine) compactIfNeeded(ctx context.Context) error {
	window := e.cfg.ContextWindow(e.sess.Provider)
	if window <= 0 {
		return nil
	}
	threshold := e.cfg.Autocompact.Threshold
	if threshold <= 0 {
		return nil
	}
	total := e.sess.TotalTokens()
	if float64(total) <= float64(window)*threshold {
		return nil
	}

	keepRecent := e.cfg.Autocompact.KeepRecent
	compactable := e.compactableIndices()
	if len(compactable) <= keepRecent {
		return nil
	}
	target := compactable[:len(compactable)-keepRecent]

	e.log.Info("compacting history",
		zap.Int("total_tokens", total),
		zap.Int("window", window),
		zap.Int("messages", len(target)))

	summary, err := e.summarize(ctx, target)
	if err != nil {
		return err
	}

	// History is only mutated once the summary is in hand.
	for _, i := range target {
		e.sess.Messages[i].ToolsExecuted = true
	}
	e.sess.Append(session.Message{
		Role:      llm.RoleSystem,
		Content:   fmt.Sprintf("[Summary of %d messages]: %s", len(target), summary),
		IsSummary: true,
	})
	return nil
}

// compactableIndices lists messages that are neither summaries nor already
// shadowed by tool execution.
func (e *Engine) compactableIndices() []int {
	var out []int
	for i, m := range e.sess.Messages {
		if m.IsSummary || m.ToolsExecuted {
			continue
		}
		out = append(out, i)
	}
	return out
}

// summarize performs one blocking provider call over the selected messages
// and drains the stream to completion.
func (e *Engine) summarize(ctx context.Context, indices []int) (string, error) {
	var excerpt strings.Builder
	for _, i := range indices {
		m := e.sess.Messages[i]
		fmt.Fprintf(&excerpt, "[%s]: %s\n", m.Role, m.Content)
	}

	prompt := []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("%s\n\n%s", summaryInstruction, excerpt.String()),
	}}

	queue, err := e.provider.Chat(ctx, e.sess.Model, prompt, nil, summaryMaxTokens)
	if err != nil {
		return "", errors.Wrapf(err, "summarization call failed")
	}

	var summary strings.Builder
	for {
		ev, ok, err := queue.Recv(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "summarization interrupted")
		}
		if !ok {
			break
		}
		switch ev.Type {
		case llm.EventText:
			summary.WriteString(ev.Text)
		case llm.EventError:
			return "", errors.New("summarization failed: %s", ev.Err)
		case llm.EventDone:
			return strings.TrimSpace(summary.String()), nil
		}
	}
	return strings.TrimSpace(summary.String()), nil
}
