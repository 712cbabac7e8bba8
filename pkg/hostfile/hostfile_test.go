package hostfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/types"
)

const sampleINI = `[ALIASES]
myhost = host1

[host1]
file1 = path/to/file1

[host2]
_PATH = ~/path/to/somewhere/
file2 = another/path/to/file2
`

const sampleYAML = `ALIASES:
  myhost: host1
host1:
  file1: path/to/file1
host2:
  _PATH: ~/path/to/somewhere/
  file2: another/path/to/file2
`

const sampleTOML = `[ALIASES]
myhost = "host1"

[host1]
file1 = "path/to/file1"

[host2]
_PATH = "~/path/to/somewhere/"
file2 = "another/path/to/file2"
`

func parseString(t *testing.T, format Format, content string) (*types.Configuration, error) {
	t.Helper()
	return Parse(strings.NewReader(content), format, "test.conf")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/home/u/.sync.conf", FormatINI},
		{"hosts.ini", FormatINI},
		{"hosts", FormatINI},
		{"hosts.yml", FormatYAML},
		{"hosts.YAML", FormatYAML},
		{"hosts.toml", FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
		})
	}
}

func TestParse_AllFormatsAgree(t *testing.T) {
	inputs := map[Format]string{
		FormatINI:  sampleINI,
		FormatYAML: sampleYAML,
		FormatTOML: sampleTOML,
	}

	for format, content := range inputs {
		t.Run(string(format), func(t *testing.T) {
			cfg, err := parseString(t, format, content)
			require.NoError(t, err)

			assert.Equal(t, types.AliasTable{"myhost": "host1"}, cfg.Aliases)
			assert.Equal(t, []string{"host1", "host2"}, cfg.Order)

			host1, ok := cfg.Host("host1")
			require.True(t, ok)
			assert.False(t, host1.HasBasePath())
			assert.Equal(t, []types.FileEntry{{Name: "file1", Path: "path/to/file1"}}, host1.Files)

			host2, ok := cfg.Host("host2")
			require.True(t, ok)
			assert.Equal(t, "~/path/to/somewhere/", host2.BasePath)
			assert.Equal(t, []types.FileEntry{{Name: "file2", Path: "another/path/to/file2"}}, host2.Files)
		})
	}
}

func TestParseINI_Syntax(t *testing.T) {
	content := `# leading comment
; another comment

[host1]
vimrc: .vimrc
bashrc = .bashrc
url = http://example.com/a=b
`
	cfg, err := parseString(t, FormatINI, content)
	require.NoError(t, err)

	host, ok := cfg.Host("host1")
	require.True(t, ok)
	assert.Equal(t, []string{"vimrc", "bashrc", "url"}, host.FileNames())

	// only the first delimiter splits
	url, _ := host.Lookup("url")
	assert.Equal(t, "http://example.com/a=b", url)
}

func TestParseINI_PreservesDeclarationOrder(t *testing.T) {
	content := "[zeta]\nb = 2\na = 1\n[alpha]\nc = 3\n"
	cfg, err := parseString(t, FormatINI, content)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, cfg.Order)
	host, _ := cfg.Host("zeta")
	assert.Equal(t, []string{"b", "a"}, host.FileNames())
}

func TestParseINI_CRLFAndBOM(t *testing.T) {
	content := "\ufeff[host1]\r\nfile1 = a\r\n"
	cfg, err := parseString(t, FormatINI, content)
	require.NoError(t, err)

	host, ok := cfg.Host("host1")
	require.True(t, ok)
	path, _ := host.Lookup("file1")
	assert.Equal(t, "a", path)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		content  string
		wantLine int
		contains string
	}{
		{
			name:     "ini duplicate section",
			format:   FormatINI,
			content:  "[host1]\na = 1\n[host1]\nb = 2\n",
			wantLine: 3,
			contains: "already defined at line 1",
		},
		{
			name:     "ini duplicate key",
			format:   FormatINI,
			content:  "[host1]\na = 1\na = 2\n",
			wantLine: 3,
			contains: "file 'a' already defined",
		},
		{
			name:     "ini entry before section",
			format:   FormatINI,
			content:  "a = 1\n[host1]\n",
			wantLine: 1,
			contains: "before any section",
		},
		{
			name:     "ini missing delimiter",
			format:   FormatINI,
			content:  "[host1]\njustaword\n",
			wantLine: 2,
			contains: "expected 'key = value'",
		},
		{
			name:     "ini empty key",
			format:   FormatINI,
			content:  "[host1]\n = value\n",
			wantLine: 2,
			contains: "empty key",
		},
		{
			name:     "ini continuation line",
			format:   FormatINI,
			content:  "[host1]\na = 1\n  more\n",
			wantLine: 3,
			contains: "continuation",
		},
		{
			name:     "ini malformed header",
			format:   FormatINI,
			content:  "[host1\n",
			wantLine: 1,
			contains: "malformed section header",
		},
		{
			name:     "ini empty path",
			format:   FormatINI,
			content:  "[host1]\na =\n",
			wantLine: 2,
			contains: "empty path",
		},
		{
			name:     "ini empty _PATH",
			format:   FormatINI,
			content:  "[host1]\n_PATH =\n",
			wantLine: 2,
			contains: "must not be empty",
		},
		{
			name:     "ini unknown option",
			format:   FormatINI,
			content:  "[host1]\n_USER = me\n",
			wantLine: 2,
			contains: "unknown option",
		},
		{
			name:     "ini duplicate aliases section",
			format:   FormatINI,
			content:  "[ALIASES]\n[ALIASES]\n",
			wantLine: 2,
			contains: "already defined",
		},
		{
			name:     "alias to unknown host",
			format:   FormatINI,
			content:  "[ALIASES]\nmy = nowhere\n[host1]\na = 1\n",
			wantLine: 2,
			contains: "unknown host 'nowhere'",
		},
		{
			name:     "alias shadows host",
			format:   FormatINI,
			content:  "[ALIASES]\nhost1 = host2\n[host1]\na = 1\n[host2]\nb = 2\n",
			wantLine: 2,
			contains: "shadows",
		},
		{
			name:     "yaml duplicate host",
			format:   FormatYAML,
			content:  "host1:\n  a: x\nhost1:\n  b: y\n",
			wantLine: 3,
			contains: "already defined at line 1",
		},
		{
			name:     "yaml duplicate file",
			format:   FormatYAML,
			content:  "host1:\n  a: x\n  a: y\n",
			wantLine: 3,
			contains: "already defined at line 2",
		},
		{
			name:     "yaml non-scalar value",
			format:   FormatYAML,
			content:  "host1:\n  a:\n    - x\n",
			wantLine: 3,
			contains: "expected a plain value",
		},
		{
			name:     "yaml host not a mapping",
			format:   FormatYAML,
			content:  "host1: somefile\n",
			wantLine: 1,
			contains: "must be a mapping",
		},
		{
			name:     "yaml top level list",
			format:   FormatYAML,
			content:  "- host1\n",
			wantLine: 1,
			contains: "top level",
		},
		{
			name:     "yaml syntax error",
			format:   FormatYAML,
			content:  "host1:\n  a: [x\n",
			contains: "invalid YAML",
		},
		{
			name:     "toml syntax error",
			format:   FormatTOML,
			content:  "[host1]\na = \n",
			contains: "invalid TOML",
		},
		{
			name:     "toml non-string value",
			format:   FormatTOML,
			content:  "[host1]\na = \"x\"\nb = 3\n",
			wantLine: 3,
			contains: "value of 'host1.b' must be a string, got integer",
		},
		{
			name:     "toml host not a table",
			format:   FormatTOML,
			content:  "host1 = \"x\"\n",
			wantLine: 1,
			contains: "must be a table",
		},
		{
			name:     "toml nested table",
			format:   FormatTOML,
			content:  "[host1]\na = \"x\"\n\n[host1.sub]\nb = \"y\"\n",
			wantLine: 4,
			contains: "'host1.sub' must be a string, got table",
		},
		{
			name:     "toml unknown option",
			format:   FormatTOML,
			content:  "[host1]\n_USER = \"me\"\n",
			wantLine: 2,
			contains: "unknown option '_USER'",
		},
		{
			name:     "toml alias to unknown host",
			format:   FormatTOML,
			content:  "[ALIASES]\n\nwork = \"nohost\"\n",
			wantLine: 3,
			contains: "points to unknown host 'nohost'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseString(t, tt.format, tt.content)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse), "got %v", err)
			assert.Contains(t, err.Error(), tt.contains)

			details := errors.GetErrorDetails(err)
			assert.Equal(t, "test.conf", details["file"])
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, details["line"])
				assert.Contains(t, err.Error(), "test.conf:")
			}
		})
	}
}

func TestParse_DefaultSection(t *testing.T) {
	content := `[DEFAULT]
_PATH = /srv/dots
vimrc = .vimrc
bashrc = .bashrc

[host1]
bashrc = custom/.bashrc

[host2]
_PATH = ~/other
zshrc = .zshrc
`
	cfg, err := parseString(t, FormatINI, content)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2"}, cfg.Order)

	host1, _ := cfg.Host("host1")
	assert.Equal(t, "/srv/dots", host1.BasePath)
	assert.Equal(t, []string{"vimrc", "bashrc"}, host1.FileNames())
	bashrc, _ := host1.Lookup("bashrc")
	assert.Equal(t, "custom/.bashrc", bashrc)

	host2, _ := cfg.Host("host2")
	assert.Equal(t, "~/other", host2.BasePath)
	assert.Equal(t, []string{"vimrc", "bashrc", "zshrc"}, host2.FileNames())
}

func TestParse_EmptyInputs(t *testing.T) {
	for _, format := range []Format{FormatINI, FormatYAML, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			cfg, err := parseString(t, format, "")
			require.NoError(t, err)
			assert.Empty(t, cfg.Hosts)
			assert.Empty(t, cfg.Aliases)
		})
	}
}

func TestParseYAML_NullHostIsEmpty(t *testing.T) {
	cfg, err := parseString(t, FormatYAML, "host1:\nhost2:\n  a: b\n")
	require.NoError(t, err)

	host1, ok := cfg.Host("host1")
	require.True(t, ok)
	assert.Empty(t, host1.Files)
}

func TestParseTOML_PreservesDeclarationOrder(t *testing.T) {
	content := "[zeta]\nb = \"2\"\na = \"1\"\n\n[alpha]\nc = \"3\"\n"
	cfg, err := parseString(t, FormatTOML, content)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, cfg.Order)
	host, _ := cfg.Host("zeta")
	assert.Equal(t, []string{"b", "a"}, host.FileNames())
}

func TestParseTOML_InlineTableHost(t *testing.T) {
	content := "box = { _PATH = \"/srv\", vimrc = '.vimrc' }\n\n[laptop]\nzshrc = \"\"\".zshrc\"\"\"\n"
	cfg, err := parseString(t, FormatTOML, content)
	require.NoError(t, err)

	assert.Equal(t, []string{"box", "laptop"}, cfg.Order)
	box, _ := cfg.Host("box")
	assert.Equal(t, "/srv", box.BasePath)
	assert.Equal(t, []types.FileEntry{{Name: "vimrc", Path: ".vimrc"}}, box.Files)
	laptop, _ := cfg.Host("laptop")
	assert.Equal(t, []types.FileEntry{{Name: "zshrc", Path: ".zshrc"}}, laptop.Files)
}

func TestParse_HostnamesAreCaseSensitive(t *testing.T) {
	cfg, err := parseString(t, FormatINI, "[Host1]\nVimrc = .vimrc\n[host1]\nvimrc = .vimrc\n")
	require.NoError(t, err)
	assert.Len(t, cfg.Hosts, 2)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse(strings.NewReader(""), Format("xml"), "x")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("ini file", func(t *testing.T) {
		path := filepath.Join(dir, ".sync.conf")
		require.NoError(t, os.WriteFile(path, []byte(sampleINI), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, path, cfg.Source)
		assert.Len(t, cfg.Hosts, 2)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "hosts.yml")
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"host1", "host2"}, cfg.Order)
	})

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(dir, "nope.conf")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
		assert.Contains(t, err.Error(), "does not exist")
		assert.Equal(t, errors.ExitConfig, errors.ExitCode(err))
	})

	t.Run("parse error propagates", func(t *testing.T) {
		path := filepath.Join(dir, "bad.conf")
		require.NoError(t, os.WriteFile(path, []byte("orphan = 1\n"), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
		assert.Contains(t, err.Error(), path+":1:")
	})
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".sync.conf")
	second := filepath.Join(dir, ".sync.yml")
	require.NoError(t, os.WriteFile(second, []byte(sampleYAML), 0644))

	path, err := Discover([]string{first, second})
	require.NoError(t, err)
	assert.Equal(t, second, path)

	require.NoError(t, os.WriteFile(first, []byte(sampleINI), 0644))
	path, err = Discover([]string{first, second})
	require.NoError(t, err)
	assert.Equal(t, first, path)

	_, err = Discover([]string{filepath.Join(dir, "missing")})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
}
