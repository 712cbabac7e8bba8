package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/filesystem"
	"github.com/arthur-debert/dosync/pkg/types"
)

// sshServer is a minimal SSH server offering the sftp subsystem and a
// single-file scp exec
type sshServer struct {
	addr    string
	hostKey ssh.PublicKey
}

func newSigner(t *testing.T) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer, priv
}

func startSSHServer(t *testing.T, authorized ssh.PublicKey) *sshServer {
	t.Helper()
	hostSigner, _ := newSigner(t)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	config.AddHostKey(hostSigner)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, config)
		}
	}()

	return &sshServer{addr: l.Addr().String(), hostKey: hostSigner.PublicKey()}
}

func serveSSH(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only sessions")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				if req.Type == "exec" && len(req.Payload) > 4 {
					_ = req.Reply(true, nil)
					status := serveSCP(channel, string(req.Payload[4:]))
					_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
					_ = channel.Close()
					return
				}
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
				if !ok {
					continue
				}
				server, err := sftp.NewServer(channel)
				if err != nil {
					_ = channel.Close()
					return
				}
				_ = server.Serve()
				_ = channel.Close()
			}
		}(requests)
	}
}

// serveSCP speaks the remote half of "scp -pf" and "scp -qt" for one file
func serveSCP(rw io.ReadWriter, command string) uint32 {
	fields := strings.SplitN(command, " ", 3)
	if len(fields) != 3 || fields[0] != "scp" {
		return 127
	}
	target, err := strconv.Unquote(fields[2])
	if err != nil {
		return 1
	}

	ack := make([]byte, 1)
	switch fields[1] {
	case "-pf":
		if _, err := io.ReadFull(rw, ack); err != nil {
			return 1
		}
		info, err := os.Stat(target)
		if err != nil {
			_, _ = fmt.Fprintf(rw, "\x02scp: %s: No such file or directory\n", target)
			return 1
		}
		data, err := os.ReadFile(target)
		if err != nil {
			return 1
		}
		mtime := info.ModTime().Unix()
		_, _ = fmt.Fprintf(rw, "T%d 0 %d 0\n", mtime, mtime)
		if _, err := io.ReadFull(rw, ack); err != nil {
			return 1
		}
		_, _ = fmt.Fprintf(rw, "C%04o %d %s\n", info.Mode().Perm(), len(data), filepath.Base(target))
		if _, err := io.ReadFull(rw, ack); err != nil {
			return 1
		}
		_, _ = rw.Write(append(data, 0))
		if _, err := io.ReadFull(rw, ack); err != nil {
			return 1
		}
		return 0

	case "-qt":
		r := bufio.NewReader(rw)
		header, err := r.ReadString('\n')
		if err != nil {
			return 1
		}
		var mode uint32
		var size int64
		var name string
		if _, err := fmt.Sscanf(header, "C%o %d %s", &mode, &size, &name); err != nil {
			return 1
		}
		_, _ = rw.Write([]byte{0})
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return 1
		}
		if _, err := r.ReadByte(); err != nil {
			return 1
		}
		if err := os.WriteFile(target, data, fs.FileMode(mode)); err != nil {
			return 1
		}
		if err := os.Chmod(target, fs.FileMode(mode)); err != nil {
			return 1
		}
		_, _ = rw.Write([]byte{0})
		return 0
	}
	return 1
}

// clientFiles writes an identity, known_hosts and ssh_config for alias
func clientFiles(t *testing.T, srv *sshServer, alias string, priv ed25519.PrivateKey) SSHOptions {
	t.Helper()
	dir := t.TempDir()

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	identity := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(identity, pem.EncodeToMemory(block), 0600))

	host, port, err := net.SplitHostPort(srv.addr)
	require.NoError(t, err)

	knownHostsFile := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(srv.addr)}, srv.hostKey)
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(line+"\n"), 0600))

	configFile := filepath.Join(dir, "config")
	config := fmt.Sprintf("Host %s\n  HostName %s\n  Port %s\n  User tester\n  IdentityFile %s\n", alias, host, port, identity)
	require.NoError(t, os.WriteFile(configFile, []byte(config), 0600))

	return SSHOptions{ConfigFile: configFile, KnownHosts: knownHostsFile}
}

func TestResolveEndpoint(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(configFile, []byte(
		"Host web\n  HostName web.example.com\n  Port 2222\n  User deploy\n  IdentityFile /keys/web\n"), 0600))

	t.Run("ssh config applies", func(t *testing.T) {
		ep := ResolveEndpoint("web", SSHOptions{ConfigFile: configFile})
		assert.Equal(t, "web", ep.Alias)
		assert.Equal(t, "web.example.com:2222", ep.Address)
		assert.Equal(t, "deploy", ep.User)
		assert.Equal(t, []string{"/keys/web"}, ep.Identities)
	})

	t.Run("settings override ssh config", func(t *testing.T) {
		ep := ResolveEndpoint("web", SSHOptions{ConfigFile: configFile, User: "root", Port: 22, IdentityFiles: []string{"/keys/mine"}})
		assert.Equal(t, "web.example.com:22", ep.Address)
		assert.Equal(t, "root", ep.User)
		assert.Equal(t, []string{"/keys/mine", "/keys/web"}, ep.Identities)
	})

	t.Run("no ssh config", func(t *testing.T) {
		ep := ResolveEndpoint("plain", SSHOptions{ConfigFile: filepath.Join(dir, "missing")})
		assert.Equal(t, "plain:22", ep.Address)
		assert.NotEmpty(t, ep.User)
		assert.Equal(t, defaultIdentities, ep.Identities)
	})
}

func TestDial(t *testing.T) {
	clientSigner, clientKey := newSigner(t)
	srv := startSSHServer(t, clientSigner.PublicKey())
	ctx := context.Background()

	t.Run("connects", func(t *testing.T) {
		opts := clientFiles(t, srv, "box", clientKey)
		client, err := Dial(ctx, "box", opts)
		require.NoError(t, err)
		assert.Equal(t, "tester", client.User())
		require.NoError(t, client.Close())
	})

	t.Run("unknown host key", func(t *testing.T) {
		opts := clientFiles(t, srv, "box", clientKey)
		require.NoError(t, os.WriteFile(opts.KnownHosts, nil, 0600))
		_, err := Dial(ctx, "box", opts)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrSSHConnect))
	})

	t.Run("insecure mode skips host key check", func(t *testing.T) {
		opts := clientFiles(t, srv, "box", clientKey)
		require.NoError(t, os.WriteFile(opts.KnownHosts, nil, 0600))
		opts.InsecureIgnoreHostKey = true
		client, err := Dial(ctx, "box", opts)
		require.NoError(t, err)
		require.NoError(t, client.Close())
	})

	t.Run("rejected key", func(t *testing.T) {
		_, otherKey := newSigner(t)
		opts := clientFiles(t, srv, "box", otherKey)
		_, err := Dial(ctx, "box", opts)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrSSHConnect))
		assert.Equal(t, errors.ExitTransfer, errors.ExitCode(err))
	})

	t.Run("no usable keys", func(t *testing.T) {
		opts := clientFiles(t, srv, "box", clientKey)
		opts.ConfigFile = ""
		opts.IdentityFiles = []string{filepath.Join(t.TempDir(), "absent")}
		_, err := Dial(ctx, "box", opts)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrSSHConnect))
		assert.Contains(t, err.Error(), "no usable ssh keys")
	})

	t.Run("nothing listening", func(t *testing.T) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		_, port, _ := net.SplitHostPort(l.Addr().String())
		require.NoError(t, l.Close())

		opts := clientFiles(t, srv, "box", clientKey)
		p, _ := strconv.Atoi(port)
		opts.Port = p
		_, err = Dial(ctx, "box", opts)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrHostUnreachable))
		assert.Equal(t, "box", errors.GetErrorDetails(err)["host"])
	})
}

func TestSFTP_OverSSH(t *testing.T) {
	clientSigner, clientKey := newSigner(t)
	srv := startSSHServer(t, clientSigner.PublicKey())
	opts := clientFiles(t, srv, "box", clientKey)

	localDir, remoteDir := t.TempDir(), t.TempDir()
	localFile := filepath.Join(localDir, "gitconfig")
	require.NoError(t, os.WriteFile(localFile, []byte("[user]\n"), 0644))
	require.NoError(t, os.Chtimes(localFile, past, past))

	tr := NewSFTP(Options{SSH: opts})
	defer func() { _ = tr.Close() }()

	remoteFile := filepath.Join(remoteDir, "gitconfig")
	it := types.TransferItem{Hostname: "box", LogicalName: "gitconfig", LocalPath: localFile, RemotePath: remoteFile, Direction: types.Push}

	outcome, err := tr.Transfer(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprintf("Successfully moved '%s' to 'box:%s'", localFile, remoteFile)}, outcome.Changes)

	data, err := os.ReadFile(remoteFile)
	require.NoError(t, err)
	assert.Equal(t, "[user]\n", string(data))
	info, err := os.Stat(remoteFile)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "remote mtime follows the source")

	outcome, err = tr.Transfer(context.Background(), it)
	require.NoError(t, err)
	assert.True(t, outcome.UpToDate)
}

func TestSCP_DryRunDoesNotConnect(t *testing.T) {
	local := filesystem.NewMemory()
	require.NoError(t, local.MkdirAll("/home/me/dir", 0755))
	require.NoError(t, local.WriteFile("/home/me/file", []byte("x"), 0644))

	tr := NewSCPWithConnector(Options{DryRun: true}, local, func(context.Context, string) (*ssh.Client, error) {
		t.Fatal("dry run must not connect")
		return nil, nil
	})
	ctx := context.Background()

	outcome, err := tr.Transfer(ctx, types.TransferItem{Hostname: "h", LocalPath: "/home/me/file", RemotePath: "~/file", Direction: types.Push})
	require.NoError(t, err)
	assert.Equal(t, []string{"Would move '/home/me/file' to 'h:~/file'"}, outcome.Changes)

	outcome, err = tr.Transfer(ctx, types.TransferItem{Hostname: "h", LocalPath: "/home/me/file", RemotePath: "~/file", Direction: types.Pull})
	require.NoError(t, err)
	assert.Equal(t, []string{"Would move 'h:~/file' to '/home/me/file'"}, outcome.Changes)

	_, err = tr.Transfer(ctx, types.TransferItem{Hostname: "h", LocalPath: "/home/me/dir", RemotePath: "~/dir", Direction: types.Push})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTransfer))
	assert.Contains(t, err.Error(), "single files")

	assert.NoError(t, tr.Close())
}

func TestSCP_ConnectionErrorIsKept(t *testing.T) {
	tr := NewSCPWithConnector(Options{}, filesystem.NewMemory(), func(context.Context, string) (*ssh.Client, error) {
		return nil, errors.New(errors.ErrHostUnreachable, "cannot connect to host 'h'")
	})
	_, err := tr.Transfer(context.Background(), types.TransferItem{Hostname: "h", LocalPath: "/x", RemotePath: "~/x", Direction: types.Pull})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrHostUnreachable))
}

func TestSCP_OverSSH(t *testing.T) {
	clientSigner, clientKey := newSigner(t)
	srv := startSSHServer(t, clientSigner.PublicKey())
	opts := clientFiles(t, srv, "box", clientKey)

	tr := NewSCP(Options{SSH: opts})
	defer func() { _ = tr.Close() }()
	localDir, remoteDir := t.TempDir(), t.TempDir()

	t.Run("pull keeps mode and mtime", func(t *testing.T) {
		remoteFile := filepath.Join(remoteDir, "deploy.sh")
		require.NoError(t, os.WriteFile(remoteFile, []byte("#!/bin/sh\n"), 0755))
		require.NoError(t, os.Chmod(remoteFile, 0755))
		require.NoError(t, os.Chtimes(remoteFile, past, past))

		localFile := filepath.Join(localDir, "deploy.sh")
		it := types.TransferItem{Hostname: "box", LogicalName: "deploy", LocalPath: localFile, RemotePath: remoteFile, Direction: types.Pull}
		outcome, err := tr.Transfer(context.Background(), it)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("Successfully moved 'box:%s' to '%s'", remoteFile, localFile)}, outcome.Changes)

		data, err := os.ReadFile(localFile)
		require.NoError(t, err)
		assert.Equal(t, "#!/bin/sh\n", string(data))
		info, err := os.Stat(localFile)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0755), info.Mode().Perm())
		assert.True(t, info.ModTime().Equal(past), "local mtime follows the remote")
	})

	t.Run("push keeps mode and mtime", func(t *testing.T) {
		localFile := filepath.Join(localDir, "profile")
		require.NoError(t, os.WriteFile(localFile, []byte("export A=1\n"), 0640))
		require.NoError(t, os.Chmod(localFile, 0640))
		require.NoError(t, os.Chtimes(localFile, past, past))

		remoteFile := filepath.Join(remoteDir, "profile")
		it := types.TransferItem{Hostname: "box", LogicalName: "profile", LocalPath: localFile, RemotePath: remoteFile, Direction: types.Push}
		_, err := tr.Transfer(context.Background(), it)
		require.NoError(t, err)

		data, err := os.ReadFile(remoteFile)
		require.NoError(t, err)
		assert.Equal(t, "export A=1\n", string(data))
		info, err := os.Stat(remoteFile)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0640), info.Mode().Perm())
		assert.True(t, info.ModTime().Equal(past), "remote mtime follows the source")
	})

	t.Run("missing remote file", func(t *testing.T) {
		it := types.TransferItem{Hostname: "box", LocalPath: filepath.Join(localDir, "gone"), RemotePath: filepath.Join(remoteDir, "gone"), Direction: types.Pull}
		_, err := tr.Transfer(context.Background(), it)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrTransfer))
		_, statErr := os.Stat(filepath.Join(localDir, "gone"))
		assert.True(t, os.IsNotExist(statErr))
	})
}

type fakeSession struct {
	host   string
	closed atomic.Bool
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func TestSessionPool(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("hosts connect concurrently", func(t *testing.T) {
		hosts := []string{"a", "b", "c", "d"}
		var arrived sync.WaitGroup
		arrived.Add(len(hosts))
		all := make(chan struct{})
		go func() {
			arrived.Wait()
			close(all)
		}()

		pool := newSessionPool(func(ctx context.Context, host string) (*fakeSession, error) {
			arrived.Done()
			select {
			case <-all:
				return &fakeSession{host: host}, nil
			case <-time.After(5 * time.Second):
				return nil, fmt.Errorf("%s: connections were serialized", host)
			}
		}, logger)

		var wg sync.WaitGroup
		errs := make([]error, len(hosts))
		for i, h := range hosts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s, err := pool.get(context.Background(), h)
				if err == nil && s.host != h {
					err = fmt.Errorf("got session for %s, want %s", s.host, h)
				}
				errs[i] = err
			}()
		}
		wg.Wait()
		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.NoError(t, pool.closeAll())
	})

	t.Run("one connection per host", func(t *testing.T) {
		var opens atomic.Int32
		pool := newSessionPool(func(ctx context.Context, host string) (*fakeSession, error) {
			opens.Add(1)
			time.Sleep(10 * time.Millisecond)
			return &fakeSession{host: host}, nil
		}, logger)

		var wg sync.WaitGroup
		got := make([]*fakeSession, 5)
		for i := range got {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got[i], _ = pool.get(context.Background(), "box")
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), opens.Load())
		for _, s := range got {
			assert.Same(t, got[0], s)
		}

		require.NoError(t, pool.closeAll())
		assert.True(t, got[0].closed.Load())
	})

	t.Run("failed connection is not retried", func(t *testing.T) {
		var opens atomic.Int32
		pool := newSessionPool(func(ctx context.Context, host string) (*fakeSession, error) {
			opens.Add(1)
			return nil, errors.Newf(errors.ErrHostUnreachable, "cannot connect to host '%s'", host)
		}, logger)

		for range 3 {
			_, err := pool.get(context.Background(), "down")
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrHostUnreachable))
		}
		assert.Equal(t, int32(1), opens.Load())
		assert.NoError(t, pool.closeAll())
	})

	t.Run("interrupted connection is retried", func(t *testing.T) {
		var opens atomic.Int32
		pool := newSessionPool(func(ctx context.Context, host string) (*fakeSession, error) {
			if opens.Add(1) == 1 {
				return nil, ctx.Err()
			}
			return &fakeSession{host: host}, nil
		}, logger)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := pool.get(ctx, "box")
		require.ErrorIs(t, err, context.Canceled)

		s, err := pool.get(context.Background(), "box")
		require.NoError(t, err)
		assert.Equal(t, "box", s.host)
		assert.Equal(t, int32(2), opens.Load())
	})
}
