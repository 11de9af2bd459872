// Package safety enforces the filesystem and shell-command boundaries every
// tool argument must pass before execution. All functions are pure: they
// return typed violations for the caller to audit-log and never touch the
// process environment or spawn anything.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathViolation reports a path that resolved outside the allowed root.
// Attempted is the argument as given; Resolved is the absolute path after
// symlink and relative-segment resolution.
type PathViolation struct {
	Attempted   string
	Resolved    string
	AllowedRoot string
}

func (v *PathViolation) Error() string {
	return fmt.Sprintf("path not allowed: %s (resolved %s, allowed root %s)", v.Attempted, v.Resolved, v.AllowedRoot)
}

// CommandViolation reports a command line rejected by ValidateCommand.
type CommandViolation struct {
	Command string
	Reason  string
}

func (v *CommandViolation) Error() string {
	return fmt.Sprintf("command not allowed: %s (%s)", v.Command, v.Reason)
}

// ValidatePath resolves path (symlinks and relative segments included) and
// requires the result to be a descendant of allowedRoot. On success the
// resolved absolute path is returned; otherwise a *PathViolation.
//
// The deepest existing ancestor is symlink-resolved so that targets which do
// not exist yet (write destinations) are still validated against where they
// would actually land.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", &PathViolation{Attempted: path, AllowedRoot: allowedRoot}
	}

	root, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", fmt.Errorf("resolve allowed root %q: %w", allowedRoot, err)
	}
	if resolved, rerr := filepath.EvalSymlinks(root); rerr == nil {
		root = resolved
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	resolved := resolveExisting(abs)

	if !isDescendant(root, resolved) {
		return "", &PathViolation{Attempted: path, Resolved: resolved, AllowedRoot: root}
	}
	return resolved, nil
}

// resolveExisting symlink-resolves the longest existing prefix of abs and
// rejoins the non-existing remainder lexically.
func resolveExisting(abs string) string {
	remainder := ""
	current := abs
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder))
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

func isDescendant(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// Shell metacharacters that are rejected anywhere outside quotes. Only a
// single allow-listed argv is permitted: no pipes, no compound commands,
// no redirection, no substitution.
const metaChars = ";|&<>()`$"

// deniedPatterns are destructive idioms rejected on sight regardless of the
// allow-list. Carried over from the production deny-list.
var deniedPatterns = []string{
	"rm -rf /",
	"dd if=",
	":(){ :|:& };:",
	":(){:|:&};:",
	"chmod 777",
	"> /dev/sd",
	"mkfs",
}

// ValidateCommand tokenizes commandLine with deterministic shell-word
// splitting (no shell interpreter is ever involved) and checks the leading
// token against allowList. Any parse failure, metacharacter, denylisted
// pattern, or disallowed leading token yields a *CommandViolation.
func ValidateCommand(commandLine string, allowList []string) ([]string, error) {
	trimmed := strings.TrimSpace(commandLine)
	if trimmed == "" {
		return nil, &CommandViolation{Command: commandLine, Reason: "empty command"}
	}

	for _, pattern := range deniedPatterns {
		if strings.Contains(trimmed, pattern) {
			return nil, &CommandViolation{Command: commandLine, Reason: fmt.Sprintf("dangerous pattern detected: %s", pattern)}
		}
	}

	argv, err := splitWords(trimmed)
	if err != nil {
		return nil, &CommandViolation{Command: commandLine, Reason: err.Error()}
	}
	if len(argv) == 0 {
		return nil, &CommandViolation{Command: commandLine, Reason: "empty command"}
	}

	allowed := false
	for _, cmd := range allowList {
		if argv[0] == cmd {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &CommandViolation{Command: commandLine, Reason: fmt.Sprintf("command %q is not allow-listed", argv[0])}
	}
	return argv, nil
}

// splitWords implements POSIX-ish word splitting: whitespace separates
// words, single quotes preserve everything literally, double quotes allow
// backslash escapes, and a bare backslash escapes the next character.
// Unquoted shell metacharacters and unbalanced quoting are errors.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
	)
	flush := func() {
		if inWord {
			words = append(words, current.String())
			current.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unbalanced single quote")
			}
			current.WriteString(s[i+1 : i+1+end])
			inWord = true
			i += end + 1
		case c == '"':
			i++
			closed := false
			for ; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					current.WriteByte(s[i])
					continue
				}
				if s[i] == '"' {
					closed = true
					break
				}
				current.WriteByte(s[i])
			}
			if !closed {
				return nil, fmt.Errorf("unbalanced double quote")
			}
			inWord = true
		case c == '\\':
			if i+1 >= len(s) {
				return nil, fmt.Errorf("trailing backslash")
			}
			i++
			current.WriteByte(s[i])
			inWord = true
		case c == ' ' || c == '\t':
			flush()
		case c == '\n' || c == '\r':
			return nil, fmt.Errorf("newline in command")
		case strings.IndexByte(metaChars, c) >= 0:
			return nil, fmt.Errorf("shell metacharacter %q is not permitted", string(c))
		default:
			current.WriteByte(c)
			inWord = true
		}
	}
	flush()
	return words, nil
}

// autoGeneratedSegments marks directories whose contents are build output or
// vendored state; listing tools skip them to keep results useful.
var autoGeneratedSegments = map[string]bool{
	"node_modules":  true,
	".git":          true,
	"dist":          true,
	"build":         true,
	"coverage":      true,
	".turbo":        true,
	".next":         true,
	".cache":        true,
	".vercel":       true,
	".parcel-cache": true,
	".vscode-test":  true,
	"tmp":           true,
	"logs":          true,
}

// IsAutoGeneratedPath reports whether relPath (relative to the allowed root)
// points into an auto-generated directory or a log file.
func IsAutoGeneratedPath(relPath string) bool {
	if strings.HasSuffix(relPath, ".log") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if autoGeneratedSegments[seg] {
			return true
		}
	}
	return false
}
