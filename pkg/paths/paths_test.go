package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"tilde_only", "~", "/home/me"},
		{"tilde_slash", "~/path/to/file1", "/home/me/path/to/file1"},
		{"trailing_slash_kept", "~/path/to/somewhere/", "/home/me/path/to/somewhere/"},
		{"other_user_untouched", "~bob/file", "~bob/file"},
		{"absolute_untouched", "/etc/hosts", "/etc/hosts"},
		{"relative_untouched", "path/to/file", "path/to/file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandHome("/home/me", tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	t.Setenv(EnvConfigDir, "~/cfg")
	t.Setenv(EnvStateDir, "")

	p, err := New(home)
	require.NoError(t, err)

	assert.Equal(t, home, p.HomeDir())
	assert.Equal(t, filepath.Join(home, "cfg"), p.ConfigDir())
	assert.Equal(t, filepath.Join(home, "cfg", SettingsFileName), p.SettingsFile())
	assert.Equal(t, filepath.Join(home, "state", AppDirName, LogFileName), p.LogFilePath())
}

func TestHostFileCandidates(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvConfigDir, filepath.Join(home, "cfg"))

	t.Run("without_env_override", func(t *testing.T) {
		t.Setenv(EnvHosts, "")
		p, err := New(home)
		require.NoError(t, err)

		candidates := p.HostFileCandidates()
		require.Len(t, candidates, 5)
		assert.Equal(t, filepath.Join(home, ".sync.conf"), candidates[0])
		assert.Equal(t, filepath.Join(home, ".sync.yml"), candidates[1])
		assert.Equal(t, filepath.Join(home, "cfg", "hosts.conf"), candidates[4])
	})

	t.Run("env_override_comes_first", func(t *testing.T) {
		t.Setenv(EnvHosts, "~/elsewhere.yml")
		p, err := New(home)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, "elsewhere.yml"), p.HostFileCandidates()[0])
	})
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.conf")
	require.NoError(t, os.WriteFile(present, []byte("[host1]\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "adir"), 0755))

	got, ok := FirstExisting([]string{
		filepath.Join(dir, "missing.conf"),
		filepath.Join(dir, "adir"),
		present,
	})
	assert.True(t, ok)
	assert.Equal(t, present, got)

	_, ok = FirstExisting([]string{filepath.Join(dir, "nope")})
	assert.False(t, ok)
}

func TestHasTrailingSlash(t *testing.T) {
	assert.True(t, HasTrailingSlash("dir/"))
	assert.False(t, HasTrailingSlash("dir"))
	assert.False(t, HasTrailingSlash(""))
}
