package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	e, err := NewWithRoot(root, zap.NewNop())
	require.NoError(t, err)
	// TempDir may sit behind a symlink (macOS /var -> /private/var); use the
	// executor's resolved view for building paths.
	return e, e.home
}

func run(t *testing.T, e *Executor, tool, params string) (string, error) {
	t.Helper()
	return e.Execute(context.Background(), tool, json.RawMessage(params))
}

func TestReadNumbersLines(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0644))

	out, err := run(t, e, "read", `{"file_path":"`+path+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "     1→alpha\n     2→beta\n     3→gamma\n", out)
}

func TestReadOffsetAndLimit(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\ne\n"), 0644))

	out, err := run(t, e, "read", `{"file_path":"`+path+`","offset":2,"limit":2}`)
	require.NoError(t, err)
	assert.Equal(t, "     2→b\n     3→c\n", out)
}

func TestReadEmptyFile(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	out, err := run(t, e, "read", `{"file_path":"`+path+`"}`)
	require.NoError(t, err)
	assert.Empty(t, out)

	// An explicit offset past the end is still rejected.
	_, err = run(t, e, "read", `{"file_path":"`+path+`","offset":1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past the end")
}

func TestReadRejectsDirectory(t *testing.T) {
	e, root := newTestExecutor(t)
	_, err := run(t, e, "read", `{"file_path":"`+root+`"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "a", "b", "c.txt")

	out, err := run(t, e, "write", `{"file_path":"`+path+`","content":"hello"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "File created successfully at: "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestEditUniqueMatch(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {\n\tprintln(\"old\")\n}\n"), 0644))

	out, err := run(t, e, "edit", `{"file_path":"`+path+`","old_string":"println(\"old\")","new_string":"println(\"new\")"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `println("new")`)
	assert.Contains(t, out, "     4→", "snippet uses the numbered read format")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `println("new")`)
	assert.NotContains(t, string(data), `println("old")`)
}

func TestEditRejectsAmbiguousMatch(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\nx\nx\n"), 0644))

	_, err := run(t, e, "edit", `{"file_path":"`+path+`","old_string":"x","new_string":"y"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 times")
	assert.Contains(t, err.Error(), "replace_all")

	// No mutation on rejection.
	data, _ := os.ReadFile(path)
	assert.Equal(t, "x\nx\nx\n", string(data))
}

func TestEditReplaceAll(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\nx\nx\n"), 0644))

	_, err := run(t, e, "edit", `{"file_path":"`+path+`","old_string":"x","new_string":"y","replace_all":true}`)
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "y\ny\ny\n", string(data))

	// Applying the same edit again fails because old_string is gone.
	_, err = run(t, e, "edit", `{"file_path":"`+path+`","old_string":"x","new_string":"y","replace_all":true}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEditMissingOldString(t *testing.T) {
	e, root := newTestExecutor(t)
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("content\n"), 0644))

	_, err := run(t, e, "edit", `{"file_path":"`+path+`","old_string":"absent","new_string":"y"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSandboxRejectsOutsidePath(t *testing.T) {
	e, _ := newTestExecutor(t)

	for _, tool := range []string{"read", "write", "edit"} {
		params := `{"file_path":"/etc/passwd","content":"x","old_string":"a","new_string":"b"}`
		_, err := run(t, e, tool, params)
		require.Error(t, err, tool)
		assert.Contains(t, err.Error(), "access denied", tool)
		assert.Contains(t, err.Error(), e.home, "error names the confinement root")
	}
}

func TestSandboxRejectsSymlinkEscape(t *testing.T) {
	e, root := newTestExecutor(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	link := filepath.Join(root, "innocent.txt")
	require.NoError(t, os.Symlink(secret, link))

	_, err := run(t, e, "read", `{"file_path":"`+link+`"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	// Writing through the link must not touch the target either.
	_, err = run(t, e, "write", `{"file_path":"`+link+`","content":"clobbered"}`)
	require.Error(t, err)
	data, readErr := os.ReadFile(secret)
	require.NoError(t, readErr)
	assert.Equal(t, "secret", string(data))
}

func TestSandboxChecksNearestAncestorForNewPaths(t *testing.T) {
	e, root := newTestExecutor(t)

	// New path under the root: allowed even though nothing exists yet.
	inside := filepath.Join(root, "new", "deep", "file.txt")
	_, err := run(t, e, "write", `{"file_path":"`+inside+`","content":"ok"}`)
	require.NoError(t, err)

	// New path whose nearest existing ancestor is outside: rejected.
	outside := filepath.Join(t.TempDir(), "new", "file.txt")
	_, err = run(t, e, "write", `{"file_path":"`+outside+`","content":"no"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestUnknownTool(t *testing.T) {
	e, _ := newTestExecutor(t)
	_, err := run(t, e, "teleport", `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}
