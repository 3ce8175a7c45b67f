package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ducks/llm-tui/errors"
)

const (
	defaultCommandTimeoutMS = 120000
	maxCommandTimeoutMS     = 600000
)

type bashParams struct {
	Command     string `json:"command"`
	TimeoutMS   int    `json:"timeout_ms"`
	Description string `json:"description"`
}

// bash runs a shell command with a capped timeout. The process working
// directory must already be inside the confinement root; commands are not
// given a way out of it that the filesystem tools lack.
func (e *Executor) bash(ctx context.Context, input json.RawMessage) (string, error) {
	var p bashParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.Command == "" {
		return "", errors.New("command is required")
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrapf(err, "could not get working directory")
	}
	if _, err := e.ensureSandboxed(wd); err != nil {
		return "", err
	}

	timeout := p.TimeoutMS
	if timeout <= 0 {
		timeout = defaultCommandTimeoutMS
	}
	if timeout > maxCommandTimeoutMS {
		timeout = maxCommandTimeoutMS
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", p.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", p.Command)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.New("command timed out after %dms", timeout)
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += stderr.String()
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return fmt.Sprintf("%sExit status: %d", ensureTrailingNewline(output), exitErr.ExitCode()), nil
		}
		return "", errors.Wrapf(runErr, "command failed to start")
	}
	return output, nil
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
