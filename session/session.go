// Package session holds the durable conversation history. Sessions are
// stored as JSON files, one per conversation, under the data directory.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ducks/llm-tui/errors"
	"github.com/ducks/llm-tui/llm"
)

// Message is one history entry. ToolsExecuted marks entries that carry
// already-executed tool transcripts; IsSummary marks compaction summaries.
// Both flags steer prompt assembly and compaction, not rendering.
type Message struct {
	Role          llm.Role  `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	Model         string    `json:"model,omitempty"`
	ToolsExecuted bool      `json:"tools_executed,omitempty"`
	IsSummary     bool      `json:"is_summary,omitempty"`
	TokenCount    int       `json:"token_count"`
}

// EstimateTokens approximates the token cost of a string as ceil(len/4).
// Used whenever a backend does not report an exact count.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Session is one conversation with its provider and model selection.
type Session struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	path string
}

// New creates a session with a fresh id and no history.
func New(provider, model string) (*Session, error) {
	id := fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	path, err := sessionPath(id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        id,
		Provider:  provider,
		Model:     model,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		path:      path,
	}, nil
}

// Load reads an existing session by id.
func Load(id string) (*Session, error) {
	path, err := sessionPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read session file %s", path)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "could not parse session file %s", path)
	}
	s.path = path
	return &s, nil
}

// Save writes the session to disk.
func (s *Session) Save() error {
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize session")
	}
	return os.WriteFile(s.path, data, 0644)
}

// Append adds a message, stamping its timestamp and estimated token count
// when the caller has not already supplied one.
func (s *Session) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.TokenCount == 0 {
		msg.TokenCount = EstimateTokens(msg.Content)
	}
	s.Messages = append(s.Messages, msg)
}

// TotalTokens sums the token counts of all non-summary messages.
func (s *Session) TotalTokens() int {
	total := 0
	for _, m := range s.Messages {
		if m.IsSummary {
			continue
		}
		total += m.TokenCount
	}
	return total
}

// List returns the ids of saved sessions, newest first by filename.
func List() ([]string, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read session directory")
	}
	var ids []string
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i].Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}

func dataDir() (string, error) {
	if dir := os.Getenv("LLM_TUI_DATA_DIR"); dir != "" {
		return filepath.Join(dir, "sessions"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve home directory")
	}
	return filepath.Join(home, ".local", "share", "llm-tui", "sessions"), nil
}

func sessionPath(id string) (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create session directory")
	}
	return filepath.Join(dir, id+".json"), nil
}
