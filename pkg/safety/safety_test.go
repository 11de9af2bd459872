package safety

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathRejectsEscape(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"relative traversal", "../../etc/passwd"},
		{"absolute outside root", "/etc/passwd"},
		{"nested traversal", "a/../../../etc/passwd"},
		{"empty path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePath(tt.path, "/workspace")
			if err == nil {
				t.Fatalf("expected violation for %q", tt.path)
			}
			var violation *PathViolation
			if !errors.As(err, &violation) {
				t.Fatalf("expected *PathViolation, got %T: %v", err, err)
			}
		})
	}
}

func TestValidatePathAcceptsDescendants(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"absolute descendant", "/workspace/a/b.txt", "/workspace/a/b.txt"},
		{"relative descendant", "a/b.txt", "/workspace/a/b.txt"},
		{"root itself", "/workspace", "/workspace"},
		{"dot segments collapsed", "a/./b/../c.txt", "/workspace/a/c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.path, "/workspace")
			if err != nil {
				t.Fatalf("unexpected violation: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolved %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatePathResolvesSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := ValidatePath(filepath.Join(link, "secret.txt"), root)
	var violation *PathViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected *PathViolation through symlink, got %v", err)
	}
}

var testAllowList = []string{"ls", "cat", "grep", "echo", "git"}

func TestValidateCommandAllowsSimpleCommands(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"ls -la", []string{"ls", "-la"}},
		{"echo 'hello world'", []string{"echo", "hello world"}},
		{`grep -r "needle haystack" src`, []string{"grep", "-r", "needle haystack", "src"}},
		{"git status", []string{"git", "status"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			argv, err := ValidateCommand(tt.command, testAllowList)
			if err != nil {
				t.Fatalf("unexpected violation: %v", err)
			}
			if len(argv) != len(tt.want) {
				t.Fatalf("argv = %v, want %v", argv, tt.want)
			}
			for i := range argv {
				if argv[i] != tt.want[i] {
					t.Errorf("argv[%d] = %q, want %q", i, argv[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidateCommandRejections(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"compound command", "ls; rm -rf /"},
		{"pipe", "cat /etc/passwd | grep root"},
		{"redirect", "echo pwned > /etc/motd"},
		{"substitution", "echo $(whoami)"},
		{"backtick", "echo `whoami`"},
		{"background", "ls &"},
		{"not allow-listed", "rm -rf ./build"},
		{"fork bomb", ":(){ :|:& };:"},
		{"dd raw device", "dd if=/dev/zero of=/dev/sda"},
		{"unbalanced quote", `echo "unterminated`},
		{"unbalanced single quote", "echo 'unterminated"},
		{"empty", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateCommand(tt.command, testAllowList)
			if err == nil {
				t.Fatalf("expected violation for %q", tt.command)
			}
			var violation *CommandViolation
			if !errors.As(err, &violation) {
				t.Fatalf("expected *CommandViolation, got %T: %v", err, err)
			}
		})
	}
}

func TestIsAutoGeneratedPath(t *testing.T) {
	if !IsAutoGeneratedPath("node_modules/react/index.js") {
		t.Error("node_modules should be auto-generated")
	}
	if !IsAutoGeneratedPath("server/debug.log") {
		t.Error(".log files should be auto-generated")
	}
	if IsAutoGeneratedPath("src/main.go") {
		t.Error("src/main.go should not be auto-generated")
	}
}
