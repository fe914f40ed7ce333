package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// Local runs processes on this machine.
type Local struct {
	// Dir is the working directory; empty means the current one
	Dir string
}

// NewLocal creates a local executor.
func NewLocal() *Local {
	return &Local{}
}

// Run executes argv directly, without a shell.
func (l *Local) Run(ctx context.Context, argv []string, sink io.Writer) ([]byte, error) {
	if len(argv) == 0 {
		return nil, &LaunchFailure{Command: "", Cause: errors.New("empty command")}
	}
	display := strings.Join(argv, " ")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.Dir

	var stdout, stderr bytes.Buffer
	if sink != nil {
		cmd.Stdout = sink
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	grip.Debug(message.Fields{
		"message": "running local command",
		"command": display,
		"dir":     l.Dir,
	})

	if err := cmd.Start(); err != nil {
		return nil, &LaunchFailure{Command: display, Cause: err}
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProcessFailure{
				Command:  display,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, &LaunchFailure{Command: display, Cause: err}
	}

	if sink != nil {
		return nil, nil
	}
	return stdout.Bytes(), nil
}

// RunLine splits line with shell-word rules and runs the result.
// Quoted substrings stay single arguments; no shell is involved.
func (l *Local) RunLine(ctx context.Context, line string, sink io.Writer) ([]byte, error) {
	argv, err := SplitCommand(line)
	if err != nil {
		return nil, &LaunchFailure{Command: line, Cause: err}
	}
	return l.Run(ctx, argv, sink)
}

// SplitCommand splits a command line into argv using shell-word rules.
func SplitCommand(line string) ([]string, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command %q", line)
	}
	return argv, nil
}
