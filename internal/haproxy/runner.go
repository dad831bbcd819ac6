package haproxy

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds external commands when the caller's context
// carries no deadline.
const DefaultCommandTimeout = 30 * time.Second

// CommandRunner executes external programs. Output is combined
// stdout+stderr and is returned even when the command fails.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// Output runs name with args and returns its combined output.
func (r ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = DefaultCommandTimeout
		}
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(cmdCtx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// DefaultCommandRunner is used when no runner is injected.
var DefaultCommandRunner CommandRunner = ExecRunner{}
