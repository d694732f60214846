package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var sensitivePaths = func() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".ssh"),
		filepath.Join(home, ".aws"),
		filepath.Join(home, ".config", "gcloud"),
		filepath.Join(home, ".gnupg"),
		filepath.Join(home, ".kube", "config"),
		filepath.Join(home, ".npmrc"),
		filepath.Join(home, ".password-store"),
		// Shell init files (write protection)
		filepath.Join(home, ".bashrc"),
		filepath.Join(home, ".bash_profile"),
		filepath.Join(home, ".zshrc"),
		filepath.Join(home, ".zprofile"),
		filepath.Join(home, ".profile"),
		"/etc/shadow",
		"/etc/passwd",
		"/etc/sudoers",
	}
}()

// ResolvePath expands ~, makes relative paths relative to workDir, and
// cleans the result. The dispatcher uses the same resolution for its
// version and edit-counter keys, so tool and dispatcher always agree on
// which file a call touches.
func ResolvePath(workDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve ~: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve ~: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if !filepath.IsAbs(path) && workDir != "" {
		path = filepath.Join(workDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// validateFilePath checks that a path is safe for the agent to access.
// It blocks sensitive paths (SSH keys, credentials, shell rc files) and
// resolves symlinks so a symlink cannot smuggle access to one.
func validateFilePath(resolved, action string) error {
	realPath := resolved
	if r, err := filepath.EvalSymlinks(resolved); err == nil {
		realPath = r
	}
	// EvalSymlinks fails for files that don't exist yet (writes); use resolved.

	for _, sensitive := range sensitivePaths {
		if pathMatchesOrIsInside(resolved, sensitive) || pathMatchesOrIsInside(realPath, sensitive) {
			return fmt.Errorf("blocked: %s access to %q is restricted (sensitive path)", action, resolved)
		}
	}
	return nil
}

// pathMatchesOrIsInside returns true if path equals target or is inside target directory.
func pathMatchesOrIsInside(path, target string) bool {
	if path == target {
		return true
	}
	return strings.HasPrefix(path, target+string(filepath.Separator))
}
