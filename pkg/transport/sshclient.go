package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/paths"
)

const defaultSSHPort = 22

// defaultIdentities are tried when neither settings nor ssh_config name one
var defaultIdentities = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

// Endpoint is where and as whom to connect for a configured host name
type Endpoint struct {
	Alias      string
	Address    string
	User       string
	Identities []string
}

// ResolveEndpoint applies ssh_config (HostName, User, Port, IdentityFile) to
// a host alias. Explicit settings win over ssh_config.
func ResolveEndpoint(alias string, opts SSHOptions) Endpoint {
	ep := Endpoint{Alias: alias}

	hostName, userName, port := alias, "", 0
	var identities []string

	if cfg := loadSSHConfig(opts.ConfigFile); cfg != nil {
		if v, err := cfg.Get(alias, "HostName"); err == nil && v != "" {
			hostName = v
		}
		if v, err := cfg.Get(alias, "User"); err == nil {
			userName = v
		}
		if v, err := cfg.Get(alias, "Port"); err == nil && v != "" {
			if p, perr := strconv.Atoi(v); perr == nil {
				port = p
			}
		}
		if vs, err := cfg.GetAll(alias, "IdentityFile"); err == nil {
			identities = append(identities, vs...)
		}
	}

	if opts.User != "" {
		userName = opts.User
	}
	if userName == "" {
		userName = currentUser()
	}
	if opts.Port != 0 {
		port = opts.Port
	}
	if port == 0 {
		port = defaultSSHPort
	}

	ep.User = userName
	ep.Address = net.JoinHostPort(hostName, strconv.Itoa(port))
	ep.Identities = append(append([]string{}, opts.IdentityFiles...), identities...)
	if len(ep.Identities) == 0 {
		ep.Identities = defaultIdentities
	}
	return ep
}

func loadSSHConfig(path string) *ssh_config.Config {
	if path == "" {
		return nil
	}
	f, err := os.Open(paths.ExpandHome(path))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		logger := logging.GetLogger("transport.ssh")
		logger.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable ssh config")
		return nil
	}
	return cfg
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// ClientConfig builds the ssh.ClientConfig for ep. The returned closer
// releases the agent connection, if one was opened.
func ClientConfig(ep Endpoint, opts SSHOptions) (*ssh.ClientConfig, io.Closer, error) {
	logger := logging.GetLogger("transport.ssh")

	var signers []ssh.Signer
	var closer io.Closer = nopCloser{}

	if opts.Agent != nil && opts.Agent.Usable() {
		agentSigners, closeFn, err := opts.Agent.Signers()
		if err != nil {
			logger.Debug().Err(err).Msg("SSH agent unavailable")
		} else {
			signers = append(signers, agentSigners...)
			closer = closerFunc(closeFn)
		}
	}

	for _, identity := range ep.Identities {
		signer, err := loadIdentity(identity)
		if err != nil {
			logger.Debug().Err(err).Str("identity", identity).Msg("Skipping identity file")
			continue
		}
		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		_ = closer.Close()
		return nil, nil, errors.Newf(errors.ErrSSHConnect, "no usable ssh keys for host '%s' (start an agent or configure an identity file)", ep.Alias).
			WithDetail("host", ep.Alias)
	}

	hostKeyCallback, err := hostKeyCallback(opts)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, closer, nil
}

func loadIdentity(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(paths.ExpandHome(path))
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) {
			return nil, errors.Newf(errors.ErrSSHConnect, "identity %s is passphrase protected; load it into the agent", filepath.Base(path))
		}
		return nil, err
	}
	return signer, nil
}

func hostKeyCallback(opts SSHOptions) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := paths.ExpandHome(opts.KnownHosts)
	if path == "" {
		path = paths.ExpandHome("~/.ssh/known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSSHConnect, "cannot read known hosts file %s", path)
	}
	return cb, nil
}

// Dial opens an SSH connection to alias honoring ctx while connecting
func Dial(ctx context.Context, alias string, opts SSHOptions) (*ssh.Client, error) {
	ep := ResolveEndpoint(alias, opts)
	config, closer, err := ClientConfig(ep, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()

	logger := logging.GetLogger("transport.ssh")
	logger.Debug().
		Str("host", alias).
		Str("address", ep.Address).
		Str("user", ep.User).
		Msg("Connecting")

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrHostUnreachable, "cannot connect to host '%s'", alias).
			WithDetail("host", alias).
			WithDetail("address", ep.Address)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, ep.Address, config)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, errors.ErrSSHConnect, "ssh handshake with '%s' failed", alias).
			WithDetail("host", alias)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// session is one open per-host connection
type session interface {
	io.Closer
}

// sessionPool keeps one session per host for the life of a transport.
// Hosts connect concurrently; callers asking for a host that is still
// connecting wait for that attempt. A failed connection is remembered so
// the remaining items of that host fail fast.
type sessionPool[S session] struct {
	mu      sync.Mutex
	entries map[string]*poolEntry[S]
	open    func(ctx context.Context, host string) (S, error)
	logger  zerolog.Logger
}

type poolEntry[S session] struct {
	ready   chan struct{}
	session S
	err     error
}

func newSessionPool[S session](open func(ctx context.Context, host string) (S, error), logger zerolog.Logger) *sessionPool[S] {
	return &sessionPool[S]{
		entries: make(map[string]*poolEntry[S]),
		open:    open,
		logger:  logger,
	}
}

func (p *sessionPool[S]) get(ctx context.Context, host string) (S, error) {
	var zero S

	p.mu.Lock()
	e, ok := p.entries[host]
	if !ok {
		e = &poolEntry[S]{ready: make(chan struct{})}
		p.entries[host] = e
	}
	p.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		if e.err != nil {
			return zero, e.err
		}
		return e.session, nil
	}

	e.session, e.err = p.open(ctx, host)
	if e.err != nil && ctx.Err() != nil {
		// an interrupted attempt says nothing about the host
		p.mu.Lock()
		delete(p.entries, host)
		p.mu.Unlock()
	}
	close(e.ready)

	if e.err != nil {
		p.logger.Debug().Err(e.err).Str("host", host).Msg("Connection failed")
		return zero, e.err
	}
	return e.session, nil
}

func (p *sessionPool[S]) closeAll() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry[S])
	p.mu.Unlock()

	var errs []error
	for host, e := range entries {
		<-e.ready
		if e.err != nil {
			continue
		}
		if err := e.session.Close(); err != nil {
			p.logger.Debug().Err(err).Str("host", host).Msg("Closing connection failed")
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
