// Package agent drives a conversation turn: prompt assembly, event
// draining, tool-call confirmation, and continuation after tool execution.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ducks/llm-tui/config"
	"github.com/ducks/llm-tui/errors"
	"github.com/ducks/llm-tui/llm"
	"github.com/ducks/llm-tui/session"
	"github.com/ducks/llm-tui/tools"
)

// TurnState is the engine's externally visible state.
type TurnState int

const (
	// StateIdle means no turn is in flight.
	StateIdle TurnState = iota
	// StateStreaming means a provider call is active and events are being
	// drained.
	StateStreaming
	// StateAwaitingConfirmation means a tool call is pending user approval.
	StateAwaitingConfirmation
	// StateContinuing means tool results are being folded back into the
	// conversation.
	StateContinuing
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateContinuing:
		return "continuing"
	}
	return "unknown"
}

const rejectionMessage = "Tool execution rejected by user"

// Engine owns one conversation's turn lifecycle. All methods must be called
// from the same goroutine; workers only ever touch the event queue.
type Engine struct {
	sess     *session.Session
	provider llm.Provider
	executor *tools.Executor
	cfg      *config.Config
	log      *zap.Logger

	state   TurnState
	queue   *llm.EventQueue
	buffer  strings.Builder
	usage   *llm.Usage

	pendingCalls   []llm.ToolUse
	pendingResults []llm.ToolResult
}

// New creates an engine for one session using the given resolved provider.
func New(sess *session.Session, provider llm.Provider, executor *tools.Executor, cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{
		sess:     sess,
		provider: provider,
		executor: executor,
		cfg:      cfg,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current turn state.
func (e *Engine) State() TurnState { return e.state }

// Buffer returns the assistant text streamed so far this turn.
func (e *Engine) Buffer() string { return e.buffer.String() }

// Pending returns the tool call currently awaiting confirmation, or nil.
func (e *Engine) Pending() *llm.ToolUse {
	if e.state != StateAwaitingConfirmation || len(e.pendingCalls) == 0 {
		return nil
	}
	call := e.pendingCalls[0]
	return &call
}

// SubmitTurn appends the user's message and starts a provider call. Only one
// turn may be in flight; submitting while active is a caller error.
func (e *Engine) SubmitTurn(ctx context.Context, text string) error {
	if e.state != StateIdle {
		return errors.New("a turn is already in flight (state %s)", e.state)
	}

	if err := e.compactIfNeeded(ctx); err != nil {
		// A failed summarization never blocks the turn; the over-budget
		// history is sent as-is.
		e.log.Warn("compaction failed", zap.Error(err))
	}

	e.sess.Append(session.Message{Role: llm.RoleUser, Content: text, Model: e.sess.Model})

	queue, err := e.provider.Chat(ctx, e.sess.Model, e.buildMessages(), llm.ToolDefinitions(), e.cfg.MaxTokens)
	if err != nil {
		return errors.Wrapf(err, "failed to start turn")
	}
	e.queue = queue
	e.buffer.Reset()
	e.usage = nil
	e.state = StateStreaming
	return nil
}

// Pump drains any ready events without blocking. It returns true when the
// visible state (buffer, turn state, pending call) may have changed. The
// foreground loop calls this every iteration.
func (e *Engine) Pump() bool {
	if e.queue == nil {
		return false
	}
	changed := false
	for {
		ev, ok := e.queue.Poll()
		if !ok {
			return changed
		}
		changed = true
		switch ev.Type {
		case llm.EventText:
			e.buffer.WriteString(ev.Text)

		case llm.EventToolUse:
			e.pendingCalls = append(e.pendingCalls, *ev.ToolUse)
			if e.state == StateStreaming {
				e.state = StateAwaitingConfirmation
			}

		case llm.EventDone:
			e.usage = ev.Usage
			if e.state == StateStreaming && len(e.pendingCalls) == 0 {
				e.finishTurn()
				return true
			}

		case llm.EventError:
			e.failTurn(ev.Err)
			return true
		}
	}
}

// Approve executes the pending tool call and queues its result. Execution
// failures become the result text so the model can react to them.
func (e *Engine) Approve(ctx context.Context) error {
	call, err := e.takePending()
	if err != nil {
		return err
	}

	result, execErr := e.executor.Execute(ctx, call.Name, call.Input)
	if execErr != nil {
		result = fmt.Sprintf("Error: %v", execErr)
	}
	e.resolveCall(ctx, call, result)
	return nil
}

// Reject skips the pending tool call, queueing a fixed rejection notice in
// place of a result.
func (e *Engine) Reject(ctx context.Context) error {
	call, err := e.takePending()
	if err != nil {
		return err
	}
	e.resolveCall(ctx, call, rejectionMessage)
	return nil
}

// Abandon drops the active turn. Closing the queue lets a worker that is
// still streaming discard its remaining events and finish.
func (e *Engine) Abandon() {
	e.dropQueue()
	e.buffer.Reset()
	e.pendingCalls = nil
	e.pendingResults = nil
	e.state = StateIdle
}

// dropQueue releases the active queue handle, unblocking its producer.
func (e *Engine) dropQueue() {
	if e.queue != nil {
		e.queue.Close()
		e.queue = nil
	}
}

func (e *Engine) takePending() (llm.ToolUse, error) {
	if e.state != StateAwaitingConfirmation {
		return llm.ToolUse{}, errors.New("no tool call awaiting confirmation (state %s)", e.state)
	}
	if len(e.pendingCalls) == 0 {
		return llm.ToolUse{}, errors.New("confirmation state with no pending call")
	}
	call := e.pendingCalls[0]
	e.pendingCalls = e.pendingCalls[1:]
	return call, nil
}

// resolveCall records one tool outcome and, once no calls remain, resumes
// the provider with the accumulated results.
func (e *Engine) resolveCall(ctx context.Context, call llm.ToolUse, result string) {
	e.pendingResults = append(e.pendingResults, llm.ToolResult{ToolUseID: call.ID, Content: result})
	fmt.Fprintf(&e.buffer, "\n[%s] %s\n", call.Name, result)

	if len(e.pendingCalls) > 0 {
		return
	}
	e.state = StateContinuing
	e.continueTurn(ctx)
}

// continueTurn commits the partial transcript, hands the tool results to the
// adapter, and resumes streaming.
func (e *Engine) continueTurn(ctx context.Context) {
	if partial := e.buffer.String(); partial != "" {
		e.sess.Append(session.Message{
			Role:          llm.RoleAssistant,
			Content:       partial,
			Model:         e.sess.Model,
			ToolsExecuted: true,
		})
	}
	e.sess.Append(session.Message{
		Role:          llm.RoleSystem,
		Content:       formatToolResults(e.pendingResults),
		ToolsExecuted: true,
	})

	results := e.pendingResults
	e.pendingResults = nil
	e.buffer.Reset()

	// The previous worker may still be streaming; release its queue before
	// replacing it.
	e.dropQueue()

	queue, err := e.provider.ContinueWithTools(ctx, e.sess.Model, e.buildMessages(), llm.ToolDefinitions(), results, e.cfg.MaxTokens)
	if err != nil {
		e.failTurn(err.Error())
		return
	}
	e.queue = queue
	e.state = StateStreaming
}

// finishTurn commits the streamed text as the final assistant message.
func (e *Engine) finishTurn() {
	content := e.buffer.String()
	msg := session.Message{Role: llm.RoleAssistant, Content: content, Model: e.sess.Model}
	if e.usage != nil && e.usage.OutputTokens > 0 {
		msg.TokenCount = e.usage.OutputTokens
	}
	e.sess.Append(msg)

	e.dropQueue()
	e.buffer.Reset()
	e.pendingResults = nil
	e.usage = nil
	e.state = StateIdle
}

// failTurn discards buffered text and records the failure as a system
// message.
func (e *Engine) failTurn(msg string) {
	e.sess.Append(session.Message{Role: llm.RoleSystem, Content: fmt.Sprintf("Error: %s", msg)})
	e.dropQueue()
	e.buffer.Reset()
	e.pendingCalls = nil
	e.pendingResults = nil
	e.state = StateIdle
}

// buildMessages assembles the outgoing prompt from the system prompt and the
// filtered history. Histories normally drop already-executed tool
// transcripts; the single-shot Bedrock backend instead needs them verbatim
// (it has no separate tool-result channel) and rejects system-role and empty
// messages.
func (e *Engine) buildMessages() []llm.Message {
	var out []llm.Message
	bedrock := e.provider.Name() == llm.ProviderBedrock

	if e.cfg.SystemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: e.cfg.SystemPrompt})
	}

	for _, m := range e.sess.Messages {
		if bedrock {
			if m.Role == llm.RoleSystem && !m.ToolsExecuted {
				continue
			}
			if m.Content == "" {
				continue
			}
		} else if m.ToolsExecuted {
			continue
		}
		role := m.Role
		if bedrock && role == llm.RoleSystem {
			// Retained tool transcripts ride along as user turns.
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func formatToolResults(results []llm.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Tool result for %s]:\n%s", r.ToolUseID, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// FormatToolCall renders a pending call for the confirmation prompt.
func FormatToolCall(call *llm.ToolUse) string {
	var args map[string]interface{}
	if err := json.Unmarshal(call.Input, &args); err != nil {
		return fmt.Sprintf("%s(%s)", call.Name, string(call.Input))
	}
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s(%s)", call.Name, strings.Join(parts, ", "))
}
