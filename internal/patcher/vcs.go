package patcher

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// RepositoryPath returns file relative to the root of its git checkout, or file unchanged
// when that cannot be determined
func RepositoryPath(ctx context.Context, file string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = filepath.Dir(file)
	out, err := cmd.Output()
	if err != nil {
		return file
	}

	top := strings.TrimSpace(string(out))
	abs, err := filepath.Abs(file)
	if err != nil {
		return file
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}

	rel, err := filepath.Rel(top, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}
