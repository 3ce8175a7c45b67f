package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestGlobSortsByModTime(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"old.go": "package a",
		"new.go": "package b",
	})

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "old.go"), past, past))

	out, err := run(t, e, "glob", `{"pattern":"*.go","path":"`+root+`"}`)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, filepath.Join(root, "new.go"), lines[0], "most recently modified first")
	assert.Equal(t, filepath.Join(root, "old.go"), lines[1])
}

func TestGlobExcludesHiddenAndBuildDirs(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"src/main.go":             "package main",
		".git/config.go":          "hidden",
		"node_modules/x/index.go": "dep",
		"target/out.go":           "built",
	})

	out, err := run(t, e, "glob", `{"pattern":"**/*.go","path":"`+root+`"}`)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(root, "src", "main.go"))
	assert.NotContains(t, out, ".git")
	assert.NotContains(t, out, "node_modules")
	assert.NotContains(t, out, "target")
}

func TestGlobNoMatches(t *testing.T) {
	e, root := newTestExecutor(t)
	out, err := run(t, e, "glob", `{"pattern":"*.zig","path":"`+root+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "No files found", out)
}

func TestGlobOutsideSandbox(t *testing.T) {
	e, _ := newTestExecutor(t)
	_, err := run(t, e, "glob", `{"pattern":"*","path":"/etc"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestGrepFilesWithMatches(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"a.go": "package main\nfunc Handler() {}\n",
		"b.go": "package main\nfunc helper() {}\n",
		"c.txt": "Handler notes\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"Handler","path":"`+root+`"}`)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(root, "a.go"))
	assert.Contains(t, out, filepath.Join(root, "c.txt"))
	assert.NotContains(t, out, filepath.Join(root, "b.go"))
}

func TestGrepCaseInsensitive(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{"a.txt": "HELLO world\n"})

	out, err := run(t, e, "grep", `{"pattern":"hello","path":"`+root+`","case_insensitive":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")

	out, err = run(t, e, "grep", `{"pattern":"hello","path":"`+root+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "No matches found", out)
}

func TestGrepContentModeWithContext(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"f.txt": "one\ntwo\nthree\nfour\nfive\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"three","path":"`+root+`","output_mode":"content","line_numbers":true,"context_before":1,"context_after":1}`)
	require.NoError(t, err)

	path := filepath.Join(root, "f.txt")
	assert.Contains(t, out, path+":2:two")
	assert.Contains(t, out, path+":3:three")
	assert.Contains(t, out, path+":4:four")
	assert.NotContains(t, out, ":1:one")
	assert.NotContains(t, out, ":5:five")
}

func TestGrepCountMode(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"a.txt": "x\nx\nx\n",
		"b.txt": "x\n",
		"c.txt": "y\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"x","path":"`+root+`","output_mode":"count"}`)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(root, "a.txt")+":3")
	assert.Contains(t, out, filepath.Join(root, "b.txt")+":1")
	assert.NotContains(t, out, "c.txt")
}

func TestGrepGlobFilter(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"a.go":  "needle\n",
		"a.txt": "needle\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"needle","path":"`+root+`","glob":"*.go"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a.go")
	assert.NotContains(t, out, "a.txt")
}

func TestGrepFileTypeFilter(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"a.go": "needle\n",
		"a.py": "needle\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"needle","path":"`+root+`","file_type":"py"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a.py")
	assert.NotContains(t, out, "a.go")

	_, err = run(t, e, "grep", `{"pattern":"needle","path":"`+root+`","file_type":"cobol"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file_type")
}

func TestGrepMultiline(t *testing.T) {
	e, root := newTestExecutor(t)
	writeTree(t, root, map[string]string{
		"a.txt": "start\nmiddle\nend\n",
	})

	out, err := run(t, e, "grep", `{"pattern":"start.*end","path":"`+root+`","multiline":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")

	out, err = run(t, e, "grep", `{"pattern":"start.*end","path":"`+root+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "No matches found", out)
}

func TestGrepInvalidRegex(t *testing.T) {
	e, root := newTestExecutor(t)
	_, err := run(t, e, "grep", `{"pattern":"([","path":"`+root+`"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid regular expression")
}
