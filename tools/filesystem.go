package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ducks/llm-tui/errors"
)

type readParams struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
}

type writeParams struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type editParams struct {
	FilePath   string   `json:"file_path"`
	OldString  string   `json:"old_string"`
	NewString  string   `json:"new_string"`
	ReplaceAll flexBool `json:"replace_all"`
}

// read returns file content with 1-indexed line numbers, optionally windowed
// by offset and limit.
func (e *Executor) read(input json.RawMessage) (string, error) {
	var p readParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.FilePath == "" {
		return "", errors.New("file_path is required")
	}

	path, err := e.ensureSandboxed(p.FilePath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s", p.FilePath)
	}
	if !info.Mode().IsRegular() {
		return "", errors.New("%s is not a regular file", p.FilePath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s", p.FilePath)
	}

	lines := splitLines(string(data))
	start := 0
	if p.Offset > 0 {
		start = p.Offset - 1
		if start >= len(lines) {
			return "", errors.New("offset %d is past the end of the file (%d lines)", p.Offset, len(lines))
		}
	}
	end := len(lines)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d→%s\n", i+1, lines[i])
	}
	return b.String(), nil
}

// write creates or overwrites a file, creating parent directories as needed.
func (e *Executor) write(input json.RawMessage) (string, error) {
	var p writeParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.FilePath == "" {
		return "", errors.New("file_path is required")
	}

	path, err := e.ensureSandboxed(p.FilePath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrapf(err, "could not create parent directories for %s", p.FilePath)
	}
	if err := os.WriteFile(path, []byte(p.Content), 0644); err != nil {
		return "", errors.Wrapf(err, "could not write %s", p.FilePath)
	}
	return fmt.Sprintf("File created successfully at: %s", p.FilePath), nil
}

// edit replaces old_string in a file. A non-unique match is rejected unless
// replace_all is set, with the occurrence count in the error so the model can
// disambiguate.
func (e *Executor) edit(input json.RawMessage) (string, error) {
	var p editParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.FilePath == "" {
		return "", errors.New("file_path is required")
	}
	if p.OldString == "" {
		return "", errors.New("old_string is required")
	}
	if p.OldString == p.NewString {
		return "", errors.New("old_string and new_string are identical")
	}

	path, err := e.ensureSandboxed(p.FilePath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s", p.FilePath)
	}
	content := string(data)

	count := strings.Count(content, p.OldString)
	if count == 0 {
		return "", errors.New("old_string not found in %s", p.FilePath)
	}
	if count > 1 && !bool(p.ReplaceAll) {
		return "", errors.New("old_string matches %d times in %s; provide more surrounding context to make it unique, or set replace_all", count, p.FilePath)
	}

	var updated string
	if bool(p.ReplaceAll) {
		updated = strings.ReplaceAll(content, p.OldString, p.NewString)
	} else {
		updated = strings.Replace(content, p.OldString, p.NewString, 1)
	}

	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", errors.Wrapf(err, "could not write %s", p.FilePath)
	}

	changedLine := firstChangedLine(content, p.OldString)
	return editSnippet(updated, changedLine), nil
}

// firstChangedLine returns the 0-indexed line of the first occurrence of old.
func firstChangedLine(content, old string) int {
	idx := strings.Index(content, old)
	if idx < 0 {
		return 0
	}
	return strings.Count(content[:idx], "\n")
}

// editSnippet renders the lines around a change in the same numbered format
// read uses, with 3 lines of context on each side.
func editSnippet(content string, line int) string {
	lines := splitLines(content)
	start := line - 3
	if start < 0 {
		start = 0
	}
	end := line + 4
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	b.WriteString("Edit applied. Context:\n")
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d→%s\n", i+1, lines[i])
	}
	return b.String()
}

// splitLines splits on newlines without producing a phantom trailing empty
// line for newline-terminated files.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
