package driver

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CommandResult is the captured outcome of one external command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok reports whether the command exited zero.
func (r *CommandResult) Ok() bool {
	return r.ExitCode == 0
}

// Output returns stderr if present, otherwise stdout. Failure text from the
// tools we shell out to lands on either stream depending on the tool.
func (r *CommandResult) Output() string {
	if strings.TrimSpace(r.Stderr) != "" {
		return strings.TrimSpace(r.Stderr)
	}
	return strings.TrimSpace(r.Stdout)
}

// CommandRunner executes external commands. Drivers depend on this
// interface rather than os/exec directly so tests can script outcomes.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands through os/exec. A nonzero exit is a valid
// result, not an error; errors are reserved for failing to run the command
// at all (binary missing, context canceled).
type ExecRunner struct {
	Logger *zap.Logger
}

var _ CommandRunner = (*ExecRunner)(nil)

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.Logger != nil {
		r.Logger.Debug("running command",
			zap.String("name", name),
			zap.Strings("args", args))
	}

	err := cmd.Run()

	res := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "command %s canceled", name)
		}
		return nil, errors.Wrapf(err, "failed to run %s", name)
	}

	return res, nil
}
