package tools

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ducks/llm-tui/errors"
)

type globParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

type grepParams struct {
	Pattern         string   `json:"pattern"`
	Path            string   `json:"path"`
	Glob            string   `json:"glob"`
	FileType        string   `json:"file_type"`
	OutputMode      string   `json:"output_mode"`
	CaseInsensitive flexBool `json:"case_insensitive"`
	LineNumbers     flexBool `json:"line_numbers"`
	ContextBefore   int      `json:"context_before"`
	ContextAfter    int      `json:"context_after"`
	Multiline       flexBool `json:"multiline"`
}

// Directories skipped during traversal regardless of pattern.
var excludedDirNames = map[string]bool{
	"target":       true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"vendor":       true,
	"__pycache__":  true,
}

// Absolute path prefixes never searched.
var excludedSystemPaths = []string{
	"/boot", "/dev", "/sys", "/proc", "/etc", "/lost+found",
}

// fileTypeExtensions maps a file_type filter to its extensions.
var fileTypeExtensions = map[string][]string{
	"go":   {".go"},
	"rust": {".rs"},
	"py":   {".py"},
	"js":   {".js", ".jsx", ".mjs"},
	"ts":   {".ts", ".tsx"},
	"java": {".java"},
	"c":    {".c", ".h"},
	"cpp":  {".cpp", ".cc", ".cxx", ".hpp", ".hh"},
	"rb":   {".rb"},
	"sh":   {".sh", ".bash"},
	"md":   {".md"},
	"json": {".json"},
	"yaml": {".yaml", ".yml"},
	"toml": {".toml"},
	"html": {".html", ".htm"},
	"css":  {".css"},
}

// excludedPath reports whether any segment of the path is hidden or a build
// output directory, or the path sits under a system root.
func excludedPath(path string) bool {
	for _, sys := range excludedSystemPaths {
		if path == sys || strings.HasPrefix(path, sys+string(filepath.Separator)) {
			return true
		}
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if strings.HasPrefix(seg, ".") || excludedDirNames[seg] {
			return true
		}
	}
	return false
}

// glob finds files matching a pattern, most recently modified first.
func (e *Executor) glob(input json.RawMessage) (string, error) {
	var p globParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.Pattern == "" {
		return "", errors.New("pattern is required")
	}

	base := p.Path
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrapf(err, "could not get working directory")
		}
		base = wd
	}
	base, err := e.ensureSandboxed(base)
	if err != nil {
		return "", err
	}

	matches, err := doublestar.Glob(os.DirFS(base), p.Pattern)
	if err != nil {
		return "", errors.Wrapf(err, "invalid glob pattern %q", p.Pattern)
	}

	type hit struct {
		path  string
		mtime int64
	}
	var hits []hit
	for _, rel := range matches {
		full := filepath.Join(base, rel)
		if excludedPath(full) || excludedPath(rel) {
			continue
		}
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		hits = append(hits, hit{path: full, mtime: info.ModTime().UnixNano()})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].mtime > hits[j].mtime })

	if len(hits) == 0 {
		return "No files found", nil
	}
	paths := make([]string, 0, len(hits))
	for _, h := range hits {
		paths = append(paths, h.path)
	}
	return strings.Join(paths, "\n"), nil
}

// grep searches file contents by regular expression across a directory tree.
func (e *Executor) grep(input json.RawMessage) (string, error) {
	var p grepParams
	if err := decodeParams(input, &p); err != nil {
		return "", err
	}
	if p.Pattern == "" {
		return "", errors.New("pattern is required")
	}

	pattern := p.Pattern
	if bool(p.CaseInsensitive) {
		pattern = "(?i)" + pattern
	}
	if bool(p.Multiline) {
		pattern = "(?s)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "invalid regular expression %q", p.Pattern)
	}

	base := p.Path
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrapf(err, "could not get working directory")
		}
		base = wd
	}
	base, err = e.ensureSandboxed(base)
	if err != nil {
		return "", err
	}

	var extensions []string
	if p.FileType != "" {
		exts, ok := fileTypeExtensions[p.FileType]
		if !ok {
			return "", errors.New("unknown file_type %q", p.FileType)
		}
		extensions = exts
	}

	files, err := e.collectFiles(base, p.Glob, extensions)
	if err != nil {
		return "", err
	}

	switch p.OutputMode {
	case "", "files_with_matches":
		return grepFiles(re, files, bool(p.Multiline))
	case "content":
		return grepContent(re, files, bool(p.Multiline), bool(p.LineNumbers), p.ContextBefore, p.ContextAfter)
	case "count":
		return grepCounts(re, files, bool(p.Multiline))
	}
	return "", errors.New("unknown output_mode %q", p.OutputMode)
}

// collectFiles walks the tree applying the standard exclusions plus the
// optional glob and extension filters.
func (e *Executor) collectFiles(base, globPattern string, extensions []string) ([]string, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", base)
	}
	if !info.IsDir() {
		return []string{base}, nil
	}

	var files []string
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != base && (strings.HasPrefix(name, ".") || excludedDirNames[name]) {
				return filepath.SkipDir
			}
			for _, sys := range excludedSystemPaths {
				if path == sys {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if globPattern != "" {
			rel, relErr := filepath.Rel(base, path)
			if relErr != nil {
				return nil
			}
			matched, matchErr := doublestar.Match(globPattern, rel)
			if matchErr != nil {
				return matchErr
			}
			if !matched {
				// A bare filename pattern like *.go should still hit
				// files in subdirectories.
				if nameMatched, _ := doublestar.Match(globPattern, name); !nameMatched {
					return nil
				}
			}
		}
		if len(extensions) > 0 {
			ext := filepath.Ext(name)
			ok := false
			for _, want := range extensions {
				if ext == want {
					ok = true
					break
				}
			}
			if !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrapf(walkErr, "search failed under %s", base)
	}
	sort.Strings(files)
	return files, nil
}

func grepFiles(re *regexp.Regexp, files []string, multiline bool) (string, error) {
	var out []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if re.Match(data) {
			out = append(out, path)
		}
	}
	if len(out) == 0 {
		return "No matches found", nil
	}
	return strings.Join(out, "\n"), nil
}

func grepCounts(re *regexp.Regexp, files []string, multiline bool) (string, error) {
	var out []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		n := len(re.FindAllIndex(data, -1))
		if n > 0 {
			out = append(out, fmt.Sprintf("%s:%d", path, n))
		}
	}
	if len(out) == 0 {
		return "No matches found", nil
	}
	return strings.Join(out, "\n"), nil
}

func grepContent(re *regexp.Regexp, files []string, multiline, lineNumbers bool, before, after int) (string, error) {
	var b strings.Builder
	found := false
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if multiline {
			if re.Match(data) {
				found = true
				fmt.Fprintf(&b, "%s:\n%s\n", path, strings.TrimRight(string(re.Find(data)), "\n"))
			}
			continue
		}

		lines := splitLines(string(data))
		matched := map[int]bool{}
		for i, line := range lines {
			if re.MatchString(line) {
				matched[i] = true
			}
		}
		if len(matched) == 0 {
			continue
		}
		found = true

		show := map[int]bool{}
		for i := range matched {
			for j := i - before; j <= i+after; j++ {
				if j >= 0 && j < len(lines) {
					show[j] = true
				}
			}
		}
		idxs := make([]int, 0, len(show))
		for i := range show {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)

		prev := -2
		for _, i := range idxs {
			if i != prev+1 && prev >= 0 {
				b.WriteString("--\n")
			}
			if lineNumbers {
				fmt.Fprintf(&b, "%s:%d:%s\n", path, i+1, lines[i])
			} else {
				fmt.Fprintf(&b, "%s:%s\n", path, lines[i])
			}
			prev = i
		}
	}
	if !found {
		return "No matches found", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
