// Package tools implements the six operations a model may invoke, confined
// to the user's home directory. Every filesystem operation resolves symlinks
// before checking confinement, so a link that escapes the home directory is
// rejected even when the literal path looks safe.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ducks/llm-tui/errors"
)

// Executor runs tool calls against the real filesystem and process
// environment. It is the only component with externally observable side
// effects.
type Executor struct {
	// home is the symlink-canonicalized confinement root.
	home string
	log  *zap.Logger
}

// NewExecutor creates an executor confined to the user's home directory.
func NewExecutor(log *zap.Logger) (*Executor, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve home directory")
	}
	return NewWithRoot(home, log)
}

// NewWithRoot creates an executor confined to an explicit root directory.
func NewWithRoot(root string, log *zap.Logger) (*Executor, error) {
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve confinement root %s", root)
	}
	return &Executor{home: canonical, log: log}, nil
}

// Execute dispatches one tool call by name. Tool failures come back as the
// error value; the caller decides how to surface them to the model.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	e.log.Debug("executing tool", zap.String("tool", name))
	switch name {
	case "read":
		return e.read(input)
	case "write":
		return e.write(input)
	case "edit":
		return e.edit(input)
	case "glob":
		return e.glob(input)
	case "grep":
		return e.grep(input)
	case "bash":
		return e.bash(ctx, input)
	}
	return "", errors.New("unknown tool %q", name)
}

// canonicalize resolves a path through symlinks. For paths that do not exist
// yet it resolves the nearest existing ancestor and rejoins the remainder, so
// a write into a new subdirectory is still checked against where that
// directory will really live.
func (e *Executor) canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	remainder := ""
	probe := abs
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(probe), remainder)
		probe = parent
	}
}

// ensureSandboxed fails unless the canonical resolution of path descends
// from the confinement root.
func (e *Executor) ensureSandboxed(path string) (string, error) {
	canonical, err := e.canonicalize(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve path %s", path)
	}
	if canonical != e.home && !strings.HasPrefix(canonical, e.home+string(filepath.Separator)) {
		return "", errors.New("access denied: %s is outside the home directory %s", path, e.home)
	}
	return canonical, nil
}

// flexBool tolerates models that send booleans as JSON strings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", `"true"`:
		*b = true
		return nil
	case "false", `"false"`, "null":
		*b = false
		return nil
	}
	return fmt.Errorf("invalid boolean value %s", string(data))
}

func decodeParams(input json.RawMessage, out interface{}) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, out); err != nil {
		return errors.Wrapf(err, "invalid tool parameters")
	}
	return nil
}
