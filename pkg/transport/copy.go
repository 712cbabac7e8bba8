package transport

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/filesystem"
	"github.com/arthur-debert/dosync/pkg/paths"
	"github.com/arthur-debert/dosync/pkg/types"
)

// maxDepth bounds directory recursion so symlink loops terminate
const maxDepth = 64

// copier mirrors one file or directory tree from src to dst with newer-wins
// semantics. Nothing is ever deleted on either side.
type copier struct {
	src, dst side
	exclude  []string
	dryRun   bool
	changes  []string
}

// copy mirrors srcPath onto dstPath with rsync's directory rule: "dir/"
// merges its content into dstPath while "dir" lands as dstPath/dir.
func (c *copier) copy(ctx context.Context, srcPath, dstPath string) error {
	info, err := c.src.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", c.src.Label(srcPath), err)
	}
	if info.IsDir() {
		if paths.HasTrailingSlash(srcPath) {
			dstPath = c.dst.Join(dstPath, "")
		} else {
			dstPath = c.dst.Join(dstPath, c.src.Base(srcPath))
		}
		return c.copyDir(ctx, c.src.Join(srcPath, ""), dstPath, info, 0)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", c.src.Label(srcPath))
	}
	return c.copyFile(srcPath, dstPath, info)
}

func (c *copier) copyDir(ctx context.Context, srcPath, dstPath string, info fs.FileInfo, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%s: directory nesting exceeds %d levels", c.src.Label(srcPath), maxDepth)
	}

	dstInfo, err := c.dst.Stat(dstPath)
	switch {
	case err == nil && !dstInfo.IsDir():
		return fmt.Errorf("%s exists and is not a directory", c.dst.Label(dstPath))
	case err != nil:
		c.changes = append(c.changes, fmt.Sprintf("Created directory '%s'", c.dst.Label(dstPath)))
		if !c.dryRun {
			if err := c.dst.MkdirAll(dstPath, info.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("cannot create %s: %w", c.dst.Label(dstPath), err)
			}
		}
	}

	names, err := c.src.ReadDir(srcPath)
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", c.src.Label(srcPath), err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := validEntryName(name); err != nil {
			return fmt.Errorf("%s: %w", c.src.Label(srcPath), err)
		}
		if c.excluded(name) {
			continue
		}

		childSrc, childDst := c.src.Join(srcPath, name), c.dst.Join(dstPath, name)
		childInfo, err := c.src.Stat(childSrc)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", c.src.Label(childSrc), err)
		}

		switch {
		case childInfo.IsDir():
			err = c.copyDir(ctx, childSrc, childDst, childInfo, depth+1)
		case childInfo.Mode().IsRegular():
			err = c.copyFile(childSrc, childDst, childInfo)
		default:
			// sockets, devices and fifos are not synchronized
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *copier) copyFile(srcPath, dstPath string, info fs.FileInfo) error {
	if dstInfo, err := c.dst.Stat(dstPath); err == nil {
		if dstInfo.IsDir() {
			return fmt.Errorf("%s is a directory", c.dst.Label(dstPath))
		}
		if upToDate(info, dstInfo) {
			return nil
		}
	}

	if c.dryRun {
		c.changes = append(c.changes, fmt.Sprintf("Would move '%s' to '%s'", c.src.Label(srcPath), c.dst.Label(dstPath)))
		return nil
	}

	r, err := c.src.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", c.src.Label(srcPath), err)
	}
	defer func() { _ = r.Close() }()

	if err := c.dst.Write(dstPath, r, info.Mode().Perm()); err != nil {
		return fmt.Errorf("cannot write %s: %w", c.dst.Label(dstPath), err)
	}
	if err := c.dst.SetAttrs(dstPath, info.Mode().Perm(), info.ModTime()); err != nil {
		return fmt.Errorf("cannot set attributes of %s: %w", c.dst.Label(dstPath), err)
	}

	c.changes = append(c.changes, fmt.Sprintf("Successfully moved '%s' to '%s'", c.src.Label(srcPath), c.dst.Label(dstPath)))
	return nil
}

// upToDate applies rsync's --update rule at SFTP's one second resolution:
// a newer destination is never replaced, and an equal mtime with an equal
// size counts as identical.
func upToDate(src, dst fs.FileInfo) bool {
	srcTime := src.ModTime().Truncate(time.Second)
	dstTime := dst.ModTime().Truncate(time.Second)
	if dstTime.After(srcTime) {
		return true
	}
	return dstTime.Equal(srcTime) && src.Size() == dst.Size()
}

func (c *copier) excluded(name string) bool {
	for _, pattern := range c.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// validEntryName rejects directory entries that would escape the addressed
// tree when joined to it
func validEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Newf(errors.ErrFileAccess, "refusing unsafe entry name %q", name)
	}
	return nil
}

// copyMounted mirrors an item whose host side is a directory on this
// machine. No connection is involved.
func copyMounted(ctx context.Context, local filesystem.FS, opts Options, item types.TransferItem) (Outcome, error) {
	here := localSide{fs: local}
	c := &copier{src: here, dst: here, exclude: opts.Exclude, dryRun: opts.DryRun}
	if err := c.copy(ctx, item.Source(), item.Destination()); err != nil {
		return Outcome{Changes: uniqueSorted(c.changes)}, transferError(err, item, "copy of %s to mounted host failed", item.LogicalName)
	}
	changes := uniqueSorted(c.changes)
	return Outcome{Changes: changes, UpToDate: len(changes) == 0}, nil
}
