// Package sshagent exposes the SSH key agent as an explicit capability.
//
// dosync never starts or loads an agent. It only looks at SSH_AUTH_SOCK,
// counts the keys on offer and hands that Status to the native transports.
// Key caching is left to an external helper (checkssh by default) that can be
// run once before any transfer.
package sshagent

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
)

// EnvAuthSock is where ssh clients find the agent socket
const EnvAuthSock = "SSH_AUTH_SOCK"

// DefaultPreCommand is the key-caching helper run before transfers
const DefaultPreCommand = "checkssh"

const dialTimeout = 2 * time.Second

// Status describes the agent seen at startup
type Status struct {
	Socket    string
	Available bool
	Keys      int
}

// Detect inspects SSH_AUTH_SOCK. A missing or unreachable agent is reported
// in the Status, not as an error.
func Detect() Status {
	return DetectSocket(os.Getenv(EnvAuthSock))
}

// DetectSocket inspects the agent listening on socket
func DetectSocket(socket string) Status {
	logger := logging.GetLogger("sshagent")
	st := Status{Socket: socket}
	if socket == "" {
		logger.Debug().Msg("No SSH agent socket configured")
		return st
	}

	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		logger.Debug().Err(err).Str("socket", socket).Msg("SSH agent not reachable")
		return st
	}
	defer func() { _ = conn.Close() }()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		logger.Debug().Err(err).Str("socket", socket).Msg("SSH agent did not list keys")
		return st
	}

	st.Available = true
	st.Keys = len(keys)
	logger.Debug().Str("socket", socket).Int("keys", st.Keys).Msg("SSH agent detected")
	return st
}

// Usable reports whether the agent can sign anything
func (s Status) Usable() bool {
	return s.Available && s.Keys > 0
}

// Signers opens a connection to the agent and returns its signers. The
// returned close function releases the connection.
func (s Status) Signers() ([]ssh.Signer, func() error, error) {
	if !s.Available {
		return nil, nil, errors.New(errors.ErrSSHConnect, "ssh agent is not available")
	}
	conn, err := net.DialTimeout("unix", s.Socket, dialTimeout)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrSSHConnect, "cannot connect to ssh agent at %s", s.Socket)
	}
	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, errors.ErrSSHConnect, "cannot read ssh agent keys")
	}
	return signers, conn.Close, nil
}

// RunPreCommand runs the key-caching helper when it is installed. The command
// string is split with shell quoting rules and executed without a shell. A
// command that is not on PATH is skipped.
func RunPreCommand(ctx context.Context, command string) error {
	logger := logging.GetLogger("sshagent")
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	argv, err := shellquote.Split(command)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfigValid, "invalid pre-command %q", command)
	}
	if len(argv) == 0 {
		return nil
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		logger.Debug().Str("command", argv[0]).Msg("Pre-command not installed, skipping")
		return nil
	}

	logging.LogCommand(bin, argv[1:])
	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = os.Stdin

	runErr := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.Info().Str("command", argv[0]).Msg(out)
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		logger.Error().Str("command", argv[0]).Msg(errOut)
	}
	if runErr != nil {
		return errors.Wrapf(runErr, errors.ErrInternal, "pre-command %q failed", argv[0]).
			WithDetail("command", command)
	}
	return nil
}
