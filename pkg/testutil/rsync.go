package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fakeRsyncScript = `#!/bin/sh
echo "$@" >> "LOG"
case "$*" in
CASES
esac
echo file
exit 0
`

const fakeRsyncCase = `  *HOST:*)
    echo "ssh: Could not resolve hostname HOST: Name or service not known" >&2
    exit 255
    ;;
`

// FakeRsync is a shell script standing in for rsync. It appends its
// arguments to Log, prints one transferred entry and fails like ssh does
// for the unreachable hosts.
type FakeRsync struct {
	Command string
	Log     string
}

// FakeRsync writes the script into an isolated environment
func (env *TestEnvironment) FakeRsync(unreachable ...string) *FakeRsync {
	env.t.Helper()
	if env.Type != EnvIsolated {
		env.t.Fatalf("FakeRsync needs an isolated environment")
	}

	dir := env.t.TempDir()
	f := &FakeRsync{
		Command: filepath.Join(dir, "rsync"),
		Log:     filepath.Join(dir, "rsync.log"),
	}

	var cases strings.Builder
	for _, host := range unreachable {
		cases.WriteString(strings.ReplaceAll(fakeRsyncCase, "HOST", host))
	}
	script := strings.Replace(fakeRsyncScript, "LOG", f.Log, 1)
	script = strings.Replace(script, "CASES\n", cases.String(), 1)

	if err := os.WriteFile(f.Command, []byte(script), 0755); err != nil {
		env.t.Fatalf("Failed to write fake rsync: %v", err)
	}
	return f
}

// Calls returns one line of arguments per invocation, oldest first
func (f *FakeRsync) Calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.Log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read %s: %v", f.Log, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
