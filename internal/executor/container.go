package executor

import (
	"context"

	shellquote "github.com/kballard/go-shellquote"
)

// ContainerRelay runs commands inside a running container on the remote host
// by wrapping them in the container runtime's exec primitive.
type ContainerRelay struct {
	Remote RemoteRunner

	// Runtime is the container CLI on the remote host (docker, podman)
	Runtime string

	// Shell interprets the command inside the container
	Shell string
}

// NewContainerRelay creates a relay on top of a remote runner.
func NewContainerRelay(remote RemoteRunner, runtime, shell string) *ContainerRelay {
	if runtime == "" {
		runtime = "docker"
	}
	if shell == "" {
		shell = "bash"
	}
	return &ContainerRelay{Remote: remote, Runtime: runtime, Shell: shell}
}

// Run executes command inside containerID. There is no retry here.
func (c *ContainerRelay) Run(ctx context.Context, containerID, command string) ([]byte, error) {
	out, err := c.Remote.Run(ctx, c.Wrap(containerID, command))
	if err != nil {
		return nil, &ContainerExecFailure{ContainerID: containerID, Command: command, Cause: err}
	}
	return out, nil
}

// Wrap builds the remote command line for command. The argv is quoted once
// for the remote shell; the container shell then sees command verbatim.
func (c *ContainerRelay) Wrap(containerID, command string) string {
	return shellquote.Join(c.Runtime, "exec", containerID, c.Shell, "-c", command)
}
