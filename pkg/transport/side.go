package transport

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"

	"github.com/arthur-debert/dosync/pkg/filesystem"
)

// side is one end of a native copy
type side interface {
	// Stat follows symlinks
	Stat(p string) (fs.FileInfo, error)
	ReadDir(p string) ([]string, error)
	Open(p string) (io.ReadCloser, error)
	// Write replaces p with the content of r
	Write(p string, r io.Reader, mode fs.FileMode) error
	MkdirAll(p string, mode fs.FileMode) error
	SetAttrs(p string, mode fs.FileMode, mtime time.Time) error
	Join(dir, name string) string
	Base(p string) string
	Label(p string) string
}

// localSide is this machine, through the afero filesystem
type localSide struct {
	fs filesystem.FS
}

func (l localSide) Stat(p string) (fs.FileInfo, error) { return l.fs.Stat(p) }

func (l localSide) ReadDir(p string) ([]string, error) {
	entries, err := l.fs.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (l localSide) Open(p string) (io.ReadCloser, error) { return l.fs.Open(p) }

// Write goes through a temporary file so an interrupted copy never leaves a
// truncated destination behind
func (l localSide) Write(p string, r io.Reader, mode fs.FileMode) error {
	w, tmp, err := l.fs.CreateTemp(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		_ = l.fs.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		_ = l.fs.Remove(tmp)
		return err
	}
	if err := l.fs.Chmod(tmp, mode); err != nil {
		_ = l.fs.Remove(tmp)
		return err
	}
	return l.fs.Rename(tmp, p)
}

func (l localSide) MkdirAll(p string, mode fs.FileMode) error { return l.fs.MkdirAll(p, mode) }

func (l localSide) SetAttrs(p string, mode fs.FileMode, mtime time.Time) error {
	if err := l.fs.Chmod(p, mode); err != nil {
		return err
	}
	return l.fs.Chtimes(p, mtime, mtime)
}

func (l localSide) Join(dir, name string) string { return filepath.Join(dir, name) }

func (l localSide) Base(p string) string { return filepath.Base(p) }

func (l localSide) Label(p string) string { return p }

// remoteSide is a host reached over SFTP
type remoteSide struct {
	host   string
	client *sftp.Client
}

func (r remoteSide) Stat(p string) (fs.FileInfo, error) { return r.client.Stat(p) }

func (r remoteSide) ReadDir(p string) ([]string, error) {
	infos, err := r.client.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (r remoteSide) Open(p string) (io.ReadCloser, error) { return r.client.Open(p) }

func (r remoteSide) Write(p string, src io.Reader, mode fs.FileMode) error {
	f, err := r.client.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r remoteSide) MkdirAll(p string, _ fs.FileMode) error { return r.client.MkdirAll(p) }

func (r remoteSide) SetAttrs(p string, mode fs.FileMode, mtime time.Time) error {
	if err := r.client.Chmod(p, mode); err != nil {
		return err
	}
	return r.client.Chtimes(p, mtime, mtime)
}

func (r remoteSide) Join(dir, name string) string { return path.Join(dir, name) }

func (r remoteSide) Base(p string) string { return path.Base(p) }

func (r remoteSide) Label(p string) string { return r.host + ":" + p }
