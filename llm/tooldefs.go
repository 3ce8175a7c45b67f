package llm

// ToolDefinitions returns the static tool catalog exposed to every backend.
// Field names and required sets are identical across adapters so a tool call
// produced against one provider replays cleanly against another.
func ToolDefinitions() []ToolDef {
	return []ToolDef{
		{
			Name:        "read",
			Description: "Read a file from the filesystem with line numbers.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "The absolute path to the file to read",
					},
					"offset": map[string]interface{}{
						"type":        "number",
						"description": "Optional: Line number to start reading from (1-indexed)",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Optional: Number of lines to read",
					},
				},
				"required": []string{"file_path"},
			},
		},
		{
			Name:        "write",
			Description: "Write content to a file. Creates the file if it doesn't exist, overwrites if it does.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "The absolute path to the file to write",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The content to write to the file",
					},
				},
				"required": []string{"file_path", "content"},
			},
		},
		{
			Name:        "edit",
			Description: "Edit a file by replacing old_string with new_string. The old_string must match exactly.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "The absolute path to the file to edit",
					},
					"old_string": map[string]interface{}{
						"type":        "string",
						"description": "The exact string to find and replace",
					},
					"new_string": map[string]interface{}{
						"type":        "string",
						"description": "The string to replace with",
					},
					"replace_all": map[string]interface{}{
						"type":        "boolean",
						"description": "Optional: Replace every occurrence instead of requiring a unique match",
					},
				},
				"required": []string{"file_path", "old_string", "new_string"},
			},
		},
		{
			Name:        "glob",
			Description: "Find files matching a glob pattern.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern (e.g., '**/*.go', 'src/**/*.ts')",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Optional: Base directory to search in",
					},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "grep",
			Description: "Search for a regular expression pattern in files.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regular expression pattern to search for",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Optional: Directory or file to search in",
					},
					"glob": map[string]interface{}{
						"type":        "string",
						"description": "Optional: Glob pattern to filter files (e.g., '*.go')",
					},
					"file_type": map[string]interface{}{
						"type":        "string",
						"description": "Optional: File type to search (e.g., 'go', 'rust', 'py')",
					},
					"output_mode": map[string]interface{}{
						"type":        "string",
						"description": "Output mode: 'files_with_matches' (default), 'content', or 'count'",
						"enum":        []string{"files_with_matches", "content", "count"},
					},
					"case_insensitive": map[string]interface{}{
						"type":        "boolean",
						"description": "Optional: Case insensitive search",
					},
					"line_numbers": map[string]interface{}{
						"type":        "boolean",
						"description": "Optional: Show line numbers in content mode",
					},
					"context_before": map[string]interface{}{
						"type":        "number",
						"description": "Optional: Lines of context before each match in content mode",
					},
					"context_after": map[string]interface{}{
						"type":        "number",
						"description": "Optional: Lines of context after each match in content mode",
					},
					"multiline": map[string]interface{}{
						"type":        "boolean",
						"description": "Optional: Allow the pattern to span lines",
					},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "bash",
			Description: "Execute a shell command. Use for git, build tools, or other CLI operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The command to execute",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "number",
						"description": "Optional: Timeout in milliseconds (default 120000, max 600000)",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Optional: Short description of what the command does",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}
