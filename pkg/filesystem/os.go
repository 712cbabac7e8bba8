package filesystem

import (
	"github.com/spf13/afero"
)

// NewOS creates a filesystem backed by the operating system
func NewOS() FS {
	return NewAferoFS(afero.NewOsFs())
}

// Exists reports whether name exists on fsys
func Exists(fsys FS, name string) (bool, error) {
	_, err := fsys.Stat(name)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}
