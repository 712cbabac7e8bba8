package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
)

// Result holds the output of one command run
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external program without a shell
type Runner interface {
	Run(ctx context.Context, program string, args []string) (*Result, error)
}

// ExecRunner runs programs with os/exec
type ExecRunner struct{}

// Run implements Runner. A non-zero exit is returned as an error together
// with the captured output.
func (ExecRunner) Run(ctx context.Context, program string, args []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		res.ExitCode = -1
	}
	return res, err
}
