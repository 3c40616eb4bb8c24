package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/archdrift/pkg/models"
)

const defaultCommandTimeout = 2 * time.Minute

// CommandChecker runs an external validator such as "likec4 validate {workspace}".
// {workspace} and {file} in Command are replaced with the sandbox paths.
type CommandChecker struct {
	Command string
	Timeout time.Duration
}

// NewCommandChecker returns a checker for command with the default timeout
func NewCommandChecker(command string) *CommandChecker {
	return &CommandChecker{Command: command, Timeout: defaultCommandTimeout}
}

// Check runs the command inside workspace. A non-zero exit is an invalid result carrying the tool's output lines.
func (c *CommandChecker) Check(ctx context.Context, workspace, file string) (models.DslValidationResult, error) {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return models.DslValidationResult{}, fmt.Errorf("%w: no validator command configured", ErrToolUnavailable)
	}

	args := make([]string, len(fields))
	for i, f := range fields {
		f = strings.ReplaceAll(f, "{workspace}", workspace)
		args[i] = strings.ReplaceAll(f, "{file}", file)
	}

	if _, err := exec.LookPath(args[0]); err != nil {
		return models.DslValidationResult{}, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, args[0], err)
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Dir = workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		return models.DslValidationResult{}, ctx.Err()
	}
	if cmdCtx.Err() == context.DeadlineExceeded {
		return models.DslValidationResult{}, fmt.Errorf("%w: %s timed out after %v", ErrToolUnavailable, args[0], timeout)
	}

	if err == nil {
		return models.DslValidationResult{Valid: true}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return models.DslValidationResult{}, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, args[0], err)
	}

	errs := outputLines(stderr.String(), stdout.String())
	if len(errs) == 0 {
		errs = []string{fmt.Sprintf("%s: %v", args[0], err)}
	}
	return models.DslValidationResult{Valid: false, Errors: errs}, nil
}

func outputLines(outputs ...string) []string {
	var lines []string
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}
