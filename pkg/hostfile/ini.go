package hostfile

import (
	"bufio"
	"io"
	"strings"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/types"
)

type sectionKind int

const (
	kindNone sectionKind = iota
	kindAliases
	kindDefault
	kindHost
)

func kindOf(name string) sectionKind {
	switch name {
	case types.AliasesSection:
		return kindAliases
	case types.DefaultSection:
		return kindDefault
	}
	return kindHost
}

// parseINI reads the ~/.sync.conf syntax:
//
//	[ALIASES]
//	myhost = host1
//
//	[host1]
//	file1 = path/to/file1
//
// Keys and values are separated by the first '=' or ':'. Lines starting with
// '#' or ';' are comments. Values are taken verbatim (no inline comments,
// no interpolation); continuation lines are rejected.
func parseINI(r io.Reader, source string) (*types.Configuration, error) {
	b := newBuilder(source)

	var (
		kind    = kindNone
		host    *types.HostEntry
		lineNo  int
		lastKey bool
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}
		line := strings.TrimSpace(raw)

		if line == "" {
			lastKey = false
			continue
		}
		if line[0] == '#' || line[0] == ';' {
			continue
		}

		if raw[0] == ' ' || raw[0] == '\t' {
			if lastKey {
				return nil, parseError(source, lineNo, "continuation lines are not supported")
			}
		}

		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				return nil, parseError(source, lineNo, "malformed section header %q", line)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			h, err := b.section(name, lineNo)
			if err != nil {
				return nil, err
			}
			kind = kindOf(name)
			host = h
			lastKey = false
			continue
		}

		key, value, ok := splitKeyValue(line)
		if !ok {
			return nil, parseError(source, lineNo, "expected 'key = value', got %q", line)
		}

		var err error
		switch kind {
		case kindNone:
			err = parseError(source, lineNo, "entry '%s' appears before any section header", key)
		case kindAliases:
			err = b.addAlias(key, value, lineNo)
		case kindDefault:
			err = b.addDefault(key, value, lineNo)
		case kindHost:
			err = b.addEntry(host, key, value, lineNo)
		}
		if err != nil {
			return nil, err
		}
		lastKey = true
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s: read failed", source).WithDetail("file", source)
	}

	return b.finish()
}

// splitKeyValue splits on whichever of '=' or ':' comes first
func splitKeyValue(line string) (string, string, bool) {
	idx := strings.IndexAny(line, "=:")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
