package transport

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/filesystem"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/types"
)

// SFTPConnector opens an SFTP client to a configured host. The closer, if
// any, is released after the client.
type SFTPConnector func(ctx context.Context, host string) (*sftp.Client, io.Closer, error)

type sftpSession struct {
	client *sftp.Client
	conn   io.Closer
	home   string
}

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SFTP copies items over a native SSH connection
type SFTP struct {
	opts   Options
	local  filesystem.FS
	pool   *sessionPool[*sftpSession]
	logger zerolog.Logger
}

// NewSFTP returns the sftp backend dialing hosts with the native SSH client
func NewSFTP(opts Options) *SFTP {
	return NewSFTPWithConnector(opts, filesystem.NewOS(), func(ctx context.Context, host string) (*sftp.Client, io.Closer, error) {
		conn, err := Dial(ctx, host, opts.SSH)
		if err != nil {
			return nil, nil, err
		}
		client, err := sftp.NewClient(conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, errors.Wrapf(err, errors.ErrSSHConnect, "cannot start sftp on host '%s'", host).
				WithDetail("host", host)
		}
		return client, conn, nil
	})
}

// NewSFTPWithConnector lets tests supply the local filesystem and the
// connection
func NewSFTPWithConnector(opts Options, local filesystem.FS, connect SFTPConnector) *SFTP {
	logger := logging.GetLogger("transport.sftp")
	open := func(ctx context.Context, host string) (*sftpSession, error) {
		client, conn, err := connect(ctx, host)
		if err != nil {
			return nil, err
		}
		home, err := client.Getwd()
		if err != nil {
			logger.Debug().Err(err).Str("host", host).Msg("Cannot determine remote home, using '.'")
			home = "."
		}
		logger.Debug().Str("host", host).Str("home", home).Msg("SFTP session opened")
		return &sftpSession{client: client, conn: conn, home: home}, nil
	}
	return &SFTP{
		opts:   opts,
		local:  local,
		pool:   newSessionPool(open, logger),
		logger: logger,
	}
}

func (s *SFTP) Name() string { return BackendSFTP }

func (s *SFTP) Close() error { return s.pool.closeAll() }

// Transfer mirrors one item with newer-wins semantics
func (s *SFTP) Transfer(ctx context.Context, item types.TransferItem) (Outcome, error) {
	if item.Mounted() {
		return copyMounted(ctx, s.local, s.opts, item)
	}

	sess, err := s.pool.get(ctx, item.Hostname)
	if err != nil {
		return Outcome{}, err
	}

	remotePath := remoteAbs(sess.home, item.RemotePath)
	local := localSide{fs: s.local}
	remote := remoteSide{host: item.Hostname, client: sess.client}

	c := &copier{exclude: s.opts.Exclude, dryRun: s.opts.DryRun}
	var srcPath, dstPath string
	if item.Direction == types.Pull {
		c.src, c.dst = remote, local
		srcPath, dstPath = remotePath, item.LocalPath
	} else {
		c.src, c.dst = local, remote
		srcPath, dstPath = item.LocalPath, remotePath
	}

	s.logger.Debug().
		Str("src", c.src.Label(srcPath)).
		Str("dest", c.dst.Label(dstPath)).
		Bool("dry_run", s.opts.DryRun).
		Msg("Copying")

	err = c.copy(ctx, srcPath, dstPath)
	outcome := Outcome{Changes: uniqueSorted(c.changes)}
	if err != nil {
		return outcome, transferError(err, item, "sftp %s of %s failed", item.Direction, item.LogicalName)
	}
	outcome.UpToDate = len(outcome.Changes) == 0
	return outcome, nil
}

// remoteAbs anchors a configured remote path at the session's login
// directory. A trailing slash survives.
func remoteAbs(home, p string) string {
	if path.IsAbs(p) {
		return p
	}
	abs := path.Join(home, homeRelative(p))
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(abs, "/") {
		abs += "/"
	}
	return abs
}
