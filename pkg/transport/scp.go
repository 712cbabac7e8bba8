package transport

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/filesystem"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/types"
)

// SSHConnector opens an SSH connection to a configured host
type SSHConnector func(ctx context.Context, host string) (*ssh.Client, error)

type scpSession struct {
	conn   *ssh.Client
	client scp.Client

	// attrs sets remote modification times, which the scp sink cannot
	attrs    *sftp.Client
	attrsErr error
	once     sync.Once
}

func (s *scpSession) Close() error {
	if s.attrs != nil {
		_ = s.attrs.Close()
	}
	return s.conn.Close()
}

// setMtime applies mtime to a remote file over an sftp channel on the same
// connection
func (s *scpSession) setMtime(p string, mtime time.Time) error {
	s.once.Do(func() {
		s.attrs, s.attrsErr = sftp.NewClient(s.conn)
	})
	if s.attrsErr != nil {
		return s.attrsErr
	}
	return s.attrs.Chtimes(p, mtime, mtime)
}

// SCP copies single files with the scp protocol. SCP cannot stat the remote
// side, so files are always overwritten. Mode and modification time travel
// with the file in both directions.
type SCP struct {
	opts   Options
	local  filesystem.FS
	pool   *sessionPool[*scpSession]
	logger zerolog.Logger
}

// NewSCP returns the scp backend dialing hosts with the native SSH client
func NewSCP(opts Options) *SCP {
	return NewSCPWithConnector(opts, filesystem.NewOS(), func(ctx context.Context, host string) (*ssh.Client, error) {
		return Dial(ctx, host, opts.SSH)
	})
}

// NewSCPWithConnector lets tests supply the local filesystem and connection
func NewSCPWithConnector(opts Options, local filesystem.FS, connect SSHConnector) *SCP {
	logger := logging.GetLogger("transport.scp")
	open := func(ctx context.Context, host string) (*scpSession, error) {
		conn, err := connect(ctx, host)
		if err != nil {
			return nil, err
		}
		client, err := scp.NewClientBySSH(conn)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, errors.ErrSSHConnect, "cannot start scp on host '%s'", host)
		}
		return &scpSession{conn: conn, client: client}, nil
	}
	return &SCP{
		opts:   opts,
		local:  local,
		pool:   newSessionPool(open, logger),
		logger: logger,
	}
}

func (s *SCP) Name() string { return BackendSCP }

func (s *SCP) Close() error { return s.pool.closeAll() }

// Transfer copies one file
func (s *SCP) Transfer(ctx context.Context, item types.TransferItem) (Outcome, error) {
	if item.Mounted() {
		return copyMounted(ctx, s.local, s.opts, item)
	}

	remotePath := homeRelative(item.RemotePath)
	local := localSide{fs: s.local}

	if item.Direction == types.Pull {
		label := fmt.Sprintf("%s:%s", item.Hostname, item.RemotePath)
		if s.opts.DryRun {
			return Outcome{Changes: []string{fmt.Sprintf("Would move '%s' to '%s'", label, item.LocalPath)}}, nil
		}
		sess, err := s.pool.get(ctx, item.Hostname)
		if err != nil {
			return Outcome{}, err
		}

		w, tmp, err := s.local.CreateTemp(item.LocalPath)
		if err != nil {
			return Outcome{}, transferError(err, item, "cannot write %s", item.LocalPath)
		}
		attrs, copyErr := sess.client.CopyFromRemoteFileInfos(ctx, w, remotePath, nil)
		closeErr := w.Close()
		if copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			_ = s.local.Remove(tmp)
			return Outcome{}, transferError(copyErr, item, "scp from %s failed", label)
		}
		if err := s.applyAttrs(tmp, attrs); err != nil {
			_ = s.local.Remove(tmp)
			return Outcome{}, transferError(err, item, "cannot set attributes of %s", item.LocalPath)
		}
		if err := s.local.Rename(tmp, item.LocalPath); err != nil {
			_ = s.local.Remove(tmp)
			return Outcome{}, transferError(err, item, "cannot write %s", item.LocalPath)
		}
		return Outcome{Changes: []string{fmt.Sprintf("Successfully moved '%s' to '%s'", label, item.LocalPath)}}, nil
	}

	info, err := local.Stat(item.LocalPath)
	if err != nil {
		return Outcome{}, transferError(err, item, "cannot read %s", item.LocalPath)
	}
	if info.IsDir() {
		return Outcome{}, transferError(nil, item, "%s is a directory; the scp transport copies single files (use rsync or sftp)", item.LocalPath)
	}

	label := fmt.Sprintf("%s:%s", item.Hostname, item.RemotePath)
	if s.opts.DryRun {
		return Outcome{Changes: []string{fmt.Sprintf("Would move '%s' to '%s'", item.LocalPath, label)}}, nil
	}

	sess, err := s.pool.get(ctx, item.Hostname)
	if err != nil {
		return Outcome{}, err
	}

	r, err := local.Open(item.LocalPath)
	if err != nil {
		return Outcome{}, transferError(err, item, "cannot open %s", item.LocalPath)
	}
	defer func() { _ = r.Close() }()

	perm := fmt.Sprintf("%04o", info.Mode().Perm())
	if err := sess.client.CopyFile(ctx, r, remotePath, perm); err != nil {
		return Outcome{}, transferError(err, item, "scp to %s failed", label)
	}

	if err := sess.setMtime(remotePath, info.ModTime()); err != nil {
		s.logger.Warn().Err(err).Str("dest", label).Msg("Cannot preserve modification time")
	}

	s.logger.Debug().Str("dest", label).Str("mode", perm).Msg("Copied")
	return Outcome{Changes: []string{fmt.Sprintf("Successfully moved '%s' to '%s'", item.LocalPath, label)}}, nil
}

// applyAttrs gives a pulled file the mode and times the remote reported.
// Zero values mean the remote sent none.
func (s *SCP) applyAttrs(p string, attrs *scp.FileInfos) error {
	if attrs == nil {
		return nil
	}
	if perm := fs.FileMode(attrs.Permissions) & fs.ModePerm; perm != 0 {
		if err := s.local.Chmod(p, perm); err != nil {
			return err
		}
	}
	if attrs.Mtime != 0 {
		atime := time.Unix(attrs.Atime, 0)
		if attrs.Atime == 0 {
			atime = time.Unix(attrs.Mtime, 0)
		}
		return s.local.Chtimes(p, atime, time.Unix(attrs.Mtime, 0))
	}
	return nil
}
