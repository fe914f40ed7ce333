// Package executor runs commands locally, on the remote host over SSH, and
// inside a container on the remote host.
//
// Every call is synchronous. Failures are reported with the typed errors in
// errors.go so callers can tell a process that ran and failed apart from one
// that never started or a host that was never reached.
package executor

import (
	"context"
	"io"
)

// LocalRunner runs a command on the local machine.
//
// With a nil sink stdout is captured and returned; otherwise stdout is
// streamed into sink and the returned output is empty.
type LocalRunner interface {
	Run(ctx context.Context, argv []string, sink io.Writer) ([]byte, error)
}

// RemoteRunner runs a shell command line on the remote host.
type RemoteRunner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

// ContainerRunner runs a shell command line inside a running container on
// the remote host.
type ContainerRunner interface {
	Run(ctx context.Context, containerID, command string) ([]byte, error)
}
