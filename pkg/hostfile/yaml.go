package hostfile

import (
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/types"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// parseYAML walks the node tree rather than decoding into maps so that
// declaration order and line numbers survive.
func parseYAML(r io.Reader, source string) (*types.Configuration, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return newBuilder(source).finish()
		}
		line := 0
		if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
			line, _ = strconv.Atoi(m[1])
		}
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s: invalid YAML", source).
			WithDetail("file", source).
			WithDetail("line", line)
	}

	if len(doc.Content) == 0 {
		return newBuilder(source).finish()
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return newBuilder(source).finish()
	}
	if root.Kind != yaml.MappingNode {
		return nil, parseError(source, root.Line, "top level must be a mapping of hosts")
	}

	b := newBuilder(source)
	seen := make(map[string]int)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name, err := yamlScalar(source, keyNode)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[name]; dup {
			return nil, parseError(source, keyNode.Line, "section '%s' already defined at line %d", name, first)
		}
		seen[name] = keyNode.Line

		host, err := b.section(name, keyNode.Line)
		if err != nil {
			return nil, err
		}

		kind := kindOf(name)
		err = yamlEntries(source, name, valNode, func(key, value string, line int) error {
			switch kind {
			case kindAliases:
				return b.addAlias(key, value, line)
			case kindDefault:
				return b.addDefault(key, value, line)
			}
			return b.addEntry(host, key, value, line)
		})
		if err != nil {
			return nil, err
		}
	}

	return b.finish()
}

// yamlEntries feeds every key/value pair of a section mapping to add.
// A null section is treated as empty.
func yamlEntries(source, section string, node *yaml.Node, add func(key, value string, line int) error) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return parseError(source, node.Line, "section '%s' must be a mapping", section)
	}

	seen := make(map[string]int)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key, err := yamlScalar(source, keyNode)
		if err != nil {
			return err
		}
		if first, dup := seen[key]; dup {
			return parseError(source, keyNode.Line, "key '%s' in section '%s' already defined at line %d", key, section, first)
		}
		seen[key] = keyNode.Line

		value, err := yamlScalar(source, valNode)
		if err != nil {
			return err
		}
		if err := add(key, value, keyNode.Line); err != nil {
			return err
		}
	}
	return nil
}

func yamlScalar(source string, node *yaml.Node) (string, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.ScalarNode {
		return "", parseError(source, node.Line, "expected a plain value")
	}
	if node.Tag == "!!null" {
		return "", nil
	}
	return node.Value, nil
}
