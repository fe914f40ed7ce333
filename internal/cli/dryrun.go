package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/wesleyorama2/ccsweep/internal/config"
	"github.com/wesleyorama2/ccsweep/internal/executor"
)

// A dry run walks the real runner over executors that print instead of
// execute. Cell folders go to a scratch directory that is removed afterwards.

type dryRemote struct {
	w    io.Writer
	addr string
}

func (d *dryRemote) Run(_ context.Context, command string) ([]byte, error) {
	fmt.Fprintf(d.w, "      [ssh %s] %s\n", d.addr, command)
	return nil, nil
}

type dryLocal struct {
	w io.Writer
}

func (d *dryLocal) Run(_ context.Context, argv []string, _ io.Writer) ([]byte, error) {
	fmt.Fprintf(d.w, "      [local] %s\n", shellquote.Join(argv...))
	return nil, nil
}

func newDryRunEnvironment(cfg *config.SweepConfig, w io.Writer) (*environment, error) {
	scratch, err := os.MkdirTemp("", "ccsweep-dry-run-")
	if err != nil {
		return nil, fmt.Errorf("creating dry-run directory: %w", err)
	}

	remote := &dryRemote{w: w, addr: cfg.Remote.User + "@" + cfg.Remote.Host}
	return &environment{
		local:     &dryLocal{w: w},
		remote:    remote,
		container: executor.NewContainerRelay(remote, cfg.Container.Runtime, cfg.Container.Shell),
		dataRoot:  scratch,
		closers:   []func() error{func() error { return os.RemoveAll(scratch) }},
	}, nil
}
