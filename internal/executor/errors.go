package executor

import (
	"fmt"
	"strings"
)

// LaunchFailure means the local process could not be started at all.
type LaunchFailure struct {
	Command string
	Cause   error
}

func (e *LaunchFailure) Error() string {
	return fmt.Sprintf("could not launch %q: %v", e.Command, e.Cause)
}

func (e *LaunchFailure) Unwrap() error { return e.Cause }

// ProcessFailure means the local process exited non-zero.
type ProcessFailure struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ProcessFailure) Error() string {
	return withStderr(fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode), e.Stderr)
}

// RemoteFailure means the remote command ran and exited non-zero.
type RemoteFailure struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *RemoteFailure) Error() string {
	return withStderr(fmt.Sprintf("remote command %q exited with status %d", e.Command, e.ExitCode), e.Stderr)
}

// TransportFailure means the remote host could not be reached or
// authenticated against, or the session broke before an exit status arrived.
type TransportFailure struct {
	Address string
	Cause   error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("ssh transport to %s failed: %v", e.Address, e.Cause)
}

func (e *TransportFailure) Unwrap() error { return e.Cause }

// ContainerExecFailure wraps any failure of a command relayed into a
// container.
type ContainerExecFailure struct {
	ContainerID string
	Command     string
	Cause       error
}

func (e *ContainerExecFailure) Error() string {
	return fmt.Sprintf("exec %q in container %s: %v", e.Command, e.ContainerID, e.Cause)
}

func (e *ContainerExecFailure) Unwrap() error { return e.Cause }

func withStderr(msg, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return msg
	}
	if len(stderr) > 512 {
		stderr = stderr[len(stderr)-512:]
	}
	return msg + ": " + stderr
}
