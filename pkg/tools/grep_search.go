package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"lumina/pkg/safety"
)

const defaultGrepResults = 50

// GrepSearchTool searches workspace files for a regular expression and
// returns path:line matches. Hidden and auto-generated paths are skipped.
type GrepSearchTool struct {
	fs   afero.Fs
	root string
}

// NewGrepSearchTool creates a grep_search tool bounded to root.
func NewGrepSearchTool(fs afero.Fs, root string) *GrepSearchTool {
	return &GrepSearchTool{fs: fs, root: root}
}

// Name returns the tool name.
func (t *GrepSearchTool) Name() string {
	return ToolGrepSearch
}

// Definition returns the model-facing definition.
func (t *GrepSearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGrepSearch,
		Description: "Search files in a workspace directory for a text or regex pattern. Returns path:line matches.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "The text or regex pattern to search for",
				},
				"path": {
					Type:        "string",
					Description: "Directory to search, relative to the workspace root. Defaults to the root itself.",
				},
				"extensions": {
					Type:        "array",
					Description: "File extensions to include, e.g. [\".go\", \".md\"]. All files when omitted.",
					Items:       &Property{Type: "string"},
				},
				"case_sensitive": {
					Type:        "boolean",
					Description: "Whether the search is case sensitive. Defaults to true.",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of matches to return. Defaults to 50.",
				},
			},
			Required: []string{"query"},
		},
		Idempotent: true,
	}
}

// Exec implements Tool.
func (t *GrepSearchTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	dir := "."
	if raw, ok := args["path"].(string); ok && raw != "" {
		dir = raw
	}
	extensions := stringSliceArg(args, "extensions")
	maxResults := intArgOrDefault(args, "max_results", defaultGrepResults)

	resolved, err := safety.ValidatePath(dir, t.root)
	if err != nil {
		return nil, err
	}

	expr := query
	if !boolArgOrDefault(args, "case_sensitive", true) {
		expr = "(?i)" + query
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid regex pattern %q: %v", query, err))
	}

	var matches []string
	truncated := false
	walkErr := afero.Walk(t.fs, resolved, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == resolved {
				return err
			}
			return filepath.SkipDir
		}
		if truncated {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && (safety.IsAutoGeneratedPath(rel) || hasHiddenSegment(rel)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if len(extensions) > 0 && !containsString(extensions, filepath.Ext(path)) {
			return nil
		}
		t.scanFile(path, rel, pattern, maxResults, &matches, &truncated)
		return nil
	})
	if walkErr != nil {
		return errorResult(fmt.Sprintf("directory not found or not readable: %s", dir))
	}

	return jsonResult(map[string]any{
		"query":     query,
		"path":      dir,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	})
}

// scanFile appends path:line matches until maxResults is reached. Unreadable
// files are skipped silently; binaries just never match line by line.
func (t *GrepSearchTool) scanFile(path, rel string, pattern *regexp.Regexp, maxResults int, matches *[]string, truncated *bool) {
	file, err := t.fs.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !pattern.MatchString(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > maxLineLength {
			trimmed = trimmed[:maxLineLength]
		}
		*matches = append(*matches, fmt.Sprintf("%s:%d: %s", rel, lineNum, trimmed))
		if len(*matches) >= maxResults {
			*truncated = true
			return
		}
	}
}

func hasHiddenSegment(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
