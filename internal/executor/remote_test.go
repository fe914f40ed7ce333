package executor

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type execResult struct {
	stdout string
	stderr string
	status uint32
}

// testSSHServer is a minimal in-process SSH server that answers "exec"
// requests through handler.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey
	handler  func(command string) execResult

	mu       sync.Mutex
	commands []string
}

func newTestSSHServer(t *testing.T, authorized ssh.PublicKey, handler func(string) execResult) *testSSHServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testSSHServer{
		listener: ln,
		config:   config,
		hostKey:  hostSigner.PublicKey(),
		handler:  handler,
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })

	return s
}

func (s *testSSHServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testSSHServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *testSSHServer) handleConn(conn net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *testSSHServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		res := s.handler(payload.Command)
		_, _ = io.WriteString(ch, res.stdout)
		_, _ = io.WriteString(ch.Stderr(), res.stderr)
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{res.status}))
		return
	}
}

// writeClientKey generates a client key pair and writes the private half in
// OpenSSH format.
func writeClientKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "ccsweep-test")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return path, signer.PublicKey()
}

func echoHandler(command string) execResult {
	return execResult{stdout: "ran: " + command}
}

func newTestRemote(keyFile string, port int) *Remote {
	return NewRemote(RemoteOptions{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "root",
		KeyFile:        keyFile,
		ConnectTimeout: 5 * time.Second,
	})
}

func TestRemote_RunSendsCommandVerbatim(t *testing.T) {
	keyFile, pub := writeClientKey(t)
	srv := newTestSSHServer(t, pub, echoHandler)

	remote := newTestRemote(keyFile, srv.port())
	defer remote.Close()

	command := `sysctl -w net.ipv4.tcp_congestion_control=bbr && echo "it's done" | tee /tmp/x`
	out, err := remote.Run(context.Background(), command)
	require.NoError(t, err)
	assert.Equal(t, "ran: "+command, string(out))
	assert.Equal(t, []string{command}, srv.received())
}

func TestRemote_ReusesConnection(t *testing.T) {
	keyFile, pub := writeClientKey(t)
	srv := newTestSSHServer(t, pub, echoHandler)

	remote := newTestRemote(keyFile, srv.port())
	defer remote.Close()

	for i := 0; i < 3; i++ {
		_, err := remote.Run(context.Background(), "echo "+strconv.Itoa(i))
		require.NoError(t, err)
	}
	assert.Len(t, srv.received(), 3)
}

func TestRemote_NonZeroExit(t *testing.T) {
	keyFile, pub := writeClientKey(t)
	srv := newTestSSHServer(t, pub, func(string) execResult {
		return execResult{stderr: "sysctl: cannot stat", status: 255}
	})

	remote := newTestRemote(keyFile, srv.port())
	defer remote.Close()

	_, err := remote.Run(context.Background(), "sysctl -w bogus=1")
	require.Error(t, err)

	var rf *RemoteFailure
	require.True(t, errors.As(err, &rf), "expected RemoteFailure, got %T: %v", err, err)
	assert.Equal(t, 255, rf.ExitCode)
	assert.Equal(t, "sysctl -w bogus=1", rf.Command)
	assert.Contains(t, rf.Stderr, "cannot stat")
}

func TestRemote_MissingKeyIsTransportFailure(t *testing.T) {
	remote := newTestRemote(filepath.Join(t.TempDir(), "missing"), 22)

	_, err := remote.Run(context.Background(), "true")
	var tf *TransportFailure
	require.True(t, errors.As(err, &tf), "expected TransportFailure, got %T", err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRemote_UnreachableHost(t *testing.T) {
	keyFile, _ := writeClientKey(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = newTestRemote(keyFile, port).Run(context.Background(), "true")
	var tf *TransportFailure
	assert.True(t, errors.As(err, &tf), "expected TransportFailure, got %T", err)
}

func TestRemote_RejectedKey(t *testing.T) {
	keyFile, _ := writeClientKey(t)
	_, otherPub := writeClientKey(t)
	srv := newTestSSHServer(t, otherPub, echoHandler)

	_, err := newTestRemote(keyFile, srv.port()).Run(context.Background(), "true")
	var tf *TransportFailure
	assert.True(t, errors.As(err, &tf), "expected TransportFailure, got %T", err)
	assert.Empty(t, srv.received())
}

func TestRemote_KnownHosts(t *testing.T) {
	keyFile, pub := writeClientKey(t)
	srv := newTestSSHServer(t, pub, echoHandler)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.port()))

	t.Run("MatchingKey", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		require.NoError(t, os.WriteFile(path, []byte(knownhosts.Line([]string{addr}, srv.hostKey)+"\n"), 0600))

		remote := newTestRemote(keyFile, srv.port())
		remote.opts.KnownHostsFile = path
		defer remote.Close()

		_, err := remote.Run(context.Background(), "true")
		assert.NoError(t, err)
	})
	t.Run("MismatchedKey", func(t *testing.T) {
		_, otherPub := writeClientKey(t)
		path := filepath.Join(t.TempDir(), "known_hosts")
		require.NoError(t, os.WriteFile(path, []byte(knownhosts.Line([]string{addr}, otherPub)+"\n"), 0600))

		remote := newTestRemote(keyFile, srv.port())
		remote.opts.KnownHostsFile = path

		_, err := remote.Run(context.Background(), "true")
		var tf *TransportFailure
		assert.True(t, errors.As(err, &tf), "expected TransportFailure, got %T", err)
	})
}
