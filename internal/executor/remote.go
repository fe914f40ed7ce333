package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// RemoteOptions addresses the remote host.
type RemoteOptions struct {
	Host    string
	Port    int
	User    string
	KeyFile string

	// KnownHostsFile enables host key verification; empty accepts any key
	KnownHostsFile string

	ConnectTimeout time.Duration
}

// Remote runs command lines on a remote host over SSH.
//
// The client connection is dialed on first use and reused; each command gets
// its own session. A broken connection is dropped so the next call redials.
type Remote struct {
	opts RemoteOptions

	mu     sync.Mutex
	client *ssh.Client
}

// NewRemote creates a remote executor. No connection is made until Run.
func NewRemote(opts RemoteOptions) *Remote {
	if opts.Port == 0 {
		opts.Port = 22
	}
	return &Remote{opts: opts}
}

// Address is the host:port the executor connects to.
func (r *Remote) Address() string {
	return net.JoinHostPort(r.opts.Host, strconv.Itoa(r.opts.Port))
}

// Run executes command through the remote user's shell. The string is sent
// as-is, so it is interpreted by exactly one shell: the remote one.
func (r *Remote) Run(ctx context.Context, command string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, &TransportFailure{Address: r.Address(), Cause: err}
	}

	session, err := client.NewSession()
	if err != nil {
		r.reset()
		return nil, &TransportFailure{Address: r.Address(), Cause: fmt.Errorf("opening session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	grip.Debug(message.Fields{
		"message": "running remote command",
		"address": r.Address(),
		"command": command,
	})

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-done
		r.reset()
		return nil, fmt.Errorf("remote command %q interrupted: %w", command, ctx.Err())
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return nil, &RemoteFailure{
				Command:  command,
				ExitCode: exitErr.ExitStatus(),
				Stderr:   stderr.String(),
			}
		}
		r.reset()
		return nil, &TransportFailure{Address: r.Address(), Cause: err}
	}

	grip.Debug(message.Fields{
		"message": "remote command finished",
		"command": command,
		"output":  stdout.String(),
	})

	return stdout.Bytes(), nil
}

// Close drops the SSH connection, if any.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *Remote) connect(ctx context.Context) (*ssh.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	config, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := r.Address()
	dialer := net.Dialer{Timeout: r.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}

	if r.opts.ConnectTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(r.opts.ConnectTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	r.client = ssh.NewClient(c, chans, reqs)
	grip.Debug(message.Fields{
		"message": "ssh connection established",
		"address": addr,
		"user":    r.opts.User,
	})
	return r.client, nil
}

func (r *Remote) clientConfig() (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(r.opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", r.opts.KeyFile, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if r.opts.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(r.opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            r.opts.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.opts.ConnectTimeout,
	}, nil
}

func (r *Remote) reset() {
	if r.client == nil {
		return
	}
	grip.Warning(message.WrapError(r.client.Close(), message.Fields{
		"message": "problem closing ssh connection",
		"address": r.Address(),
	}))
	r.client = nil
}
