// Package execx wraps subprocess invocation behind a Runner interface so
// lifecycle operations can be tested without the real disk-image tool.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Result is the structured outcome of one subprocess run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the subprocess exited zero.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Runner executes an external tool and captures its result.
//
// Run blocks until the subprocess exits. If stdin is non-empty it is written
// in full and the input stream closed before waiting. A non-zero exit is NOT
// an error from Run: callers inspect Result. An error is returned only when
// the subprocess could not be launched at all.
type Runner interface {
	Run(ctx context.Context, exe string, args []string, stdin string) (Result, error)
}

// ExecRunner runs subprocesses with os/exec and logs every invocation.
type ExecRunner struct {
	log *zap.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner constructs a Runner. A nil logger disables logging.
func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, exe string, args []string, stdin string) (Result, error) {
	cmd := exec.CommandContext(ctx, exe, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	r.log.Debug("running task", zap.String("exe", exe), zap.Strings("args", args))

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The subprocess never launched; fatal for the caller.
			return Result{}, fmt.Errorf("launch %s: %w", exe, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		r.log.Debug("task stdout", zap.String("exe", exe), zap.String("stdout", out))
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		r.log.Error("task stderr", zap.String("exe", exe), zap.String("stderr", errOut))
	}

	return res, nil
}
