package modelsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoSource is returned when neither a path nor a repository is given
var ErrNoSource = errors.New("model path or model repository is required")

// Source says where the architecture model lives. With Repo set, Path is relative to the clone.
type Source struct {
	Path string
	Repo string
	Ref  string
}

// Resolved is a model location ready to load. Cleanup must be called when the run ends.
type Resolved struct {
	// Path is the model file or directory to load
	Path string
	// Dir is the checkout root, or the local path's directory
	Dir string
	// Repo is the model repository URL; empty for a local model
	Repo    string
	Ref     string
	Cleanup func()
}

// Credentials returns the basic-auth pair used to clone repoURL; empty password means anonymous
type Credentials func(repoURL string) (username, password string)

// Resolver clones remote models into disposable directories
type Resolver struct {
	Git         string
	TempDir     string
	Credentials Credentials
}

// NewResolver returns a resolver using git from PATH
func NewResolver(creds Credentials) *Resolver {
	return &Resolver{Git: "git", Credentials: creds}
}

// Resolve returns the local path as is, or shallow-clones the repository at src.Ref
func (r *Resolver) Resolve(ctx context.Context, src Source) (*Resolved, error) {
	if src.Repo == "" {
		return r.local(src)
	}

	dir, err := os.MkdirTemp(r.TempDir, "archdrift-model-")
	if err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Failed to remove model clone")
		}
	}

	args := []string{"clone", "--depth", "1", "--quiet"}
	if src.Ref != "" {
		args = append(args, "--branch", src.Ref)
	}
	args = append(args, r.cloneURL(src.Repo), dir)

	git := r.Git
	if git == "" {
		git = "git"
	}
	cmd := exec.CommandContext(ctx, git, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("repo", src.Repo).Str("ref", src.Ref).Msg("Cloning architecture model")
	if err := cmd.Run(); err != nil {
		cleanup()
		msg := r.redact(strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("failed to clone model repository %s: %v: %s", src.Repo, err, msg)
	}

	path := dir
	if src.Path != "" {
		path = filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(src.Path, "/")))
	}
	if _, err := os.Stat(path); err != nil {
		cleanup()
		return nil, fmt.Errorf("model path %s not found in %s: %w", src.Path, src.Repo, err)
	}

	return &Resolved{Path: path, Dir: dir, Repo: src.Repo, Ref: src.Ref, Cleanup: cleanup}, nil
}

func (r *Resolver) local(src Source) (*Resolved, error) {
	if src.Path == "" {
		return nil, ErrNoSource
	}
	path, err := filepath.Abs(src.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid model path %s: %w", src.Path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model path %s: %w", src.Path, err)
	}

	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	return &Resolved{Path: path, Dir: dir, Cleanup: func() {}}, nil
}

// cloneURL embeds credentials into http(s) repository URLs
func (r *Resolver) cloneURL(repo string) string {
	if r.Credentials == nil {
		return repo
	}
	user, pass := r.Credentials(repo)
	if pass == "" {
		return repo
	}
	u, err := url.Parse(repo)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return repo
	}
	u.User = url.UserPassword(user, pass)
	return u.String()
}

// redact removes credentials from git output
func (r *Resolver) redact(s string) string {
	if r.Credentials == nil {
		return s
	}
	for _, f := range strings.Fields(s) {
		u, err := url.Parse(strings.Trim(f, "'\"`"))
		if err != nil || u.User == nil {
			continue
		}
		if _, ok := u.User.Password(); ok {
			s = strings.ReplaceAll(s, u.User.String()+"@", "***@")
		}
	}
	return s
}
