package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"comparetab/logger"
)

// LastSaved returns the current on-disk content of path.
func LastSaved(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read saved file: %w", err)
	}
	return string(data), nil
}

// GitHead returns the committed content of path as of HEAD.
func GitHead(ctx context.Context, path string) (string, error) {
	dir := filepath.Dir(path)

	root := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if root == "" {
		return "", fmt.Errorf("%s is not inside a git work tree", dir)
	}

	rel, err := filepath.Rel(strings.TrimSpace(root), path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repo-relative path: %w", err)
	}

	content := runGit(ctx, dir, "show", "HEAD:"+filepath.ToSlash(rel))
	if content == "" {
		return "", fmt.Errorf("%s has no committed version", rel)
	}

	return content, nil
}

func runGit(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		logger.Debug("snapshot: git %s failed: %v", args[0], err)
		return ""
	}
	return string(out)
}
