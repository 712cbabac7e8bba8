package hostfile

import (
	stderrors "errors"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/types"
)

// parseTOML reads the table form of the host file. The document is walked
// expression by expression so hosts and files keep their declaration order
// and every error carries the line it refers to.
func parseTOML(r io.Reader, source string) (*types.Configuration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s: cannot read", source).
			WithDetail("file", source)
	}

	// the decoder rejects invalid documents (redefined tables, duplicate
	// keys) with precise positions; the walk below only sees valid TOML
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if stderrors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s:%d:%d: invalid TOML", source, row, col).
				WithDetail("file", source).
				WithDetail("line", row).
				WithDetail("column", col)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s: invalid TOML", source).
			WithDetail("file", source)
	}

	w := &tomlWalker{b: newBuilder(source), source: source}
	w.p.Reset(data)
	for w.p.NextExpression() {
		if err := w.expression(w.p.Expression()); err != nil {
			return nil, err
		}
	}
	if err := w.p.Error(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "%s: invalid TOML", source).
			WithDetail("file", source)
	}
	return w.b.finish()
}

type tomlWalker struct {
	p      unstable.Parser
	b      *builder
	source string

	// table is the section the following key/values belong to
	table string
	host  *types.HostEntry
	open  bool
}

func (w *tomlWalker) expression(expr *unstable.Node) error {
	switch expr.Kind {
	case unstable.Table:
		keys, line := w.key(expr)
		if len(keys) != 1 {
			return parseError(w.source, line, "value of '%s' must be a string, got table", strings.Join(keys, "."))
		}
		return w.openTable(keys[0], line)

	case unstable.ArrayTable:
		keys, line := w.key(expr)
		return parseError(w.source, line, "'%s' must be a table", strings.Join(keys, "."))

	case unstable.KeyValue:
		keys, line := w.key(expr)
		if !w.open {
			// a top level inline table is a host too
			value := expr.Value()
			if len(keys) != 1 || value.Kind != unstable.InlineTable {
				return parseError(w.source, line, "'%s' must be a table", strings.Join(keys, "."))
			}
			if err := w.openTable(keys[0], line); err != nil {
				return err
			}
			children := value.Children()
			for children.Next() {
				if err := w.keyValue(children.Node()); err != nil {
					return err
				}
			}
			w.open = false
			return nil
		}
		return w.keyValue(expr)
	}
	return nil
}

func (w *tomlWalker) openTable(name string, line int) error {
	host, err := w.b.section(name, line)
	if err != nil {
		return err
	}
	w.table, w.host, w.open = name, host, true
	return nil
}

func (w *tomlWalker) keyValue(kv *unstable.Node) error {
	keys, line := w.key(kv)
	name := strings.Join(keys, ".")
	value := kv.Value()
	if len(keys) != 1 {
		return parseError(w.source, line, "value of '%s.%s' must be a string, got table", w.table, name)
	}
	if value.Kind != unstable.String {
		return parseError(w.source, line, "value of '%s.%s' must be a string, got %s", w.table, name, tomlKind(value.Kind))
	}

	key, text := keys[0], string(value.Data)
	switch kindOf(w.table) {
	case kindAliases:
		return w.b.addAlias(key, text, line)
	case kindDefault:
		return w.b.addDefault(key, text, line)
	}
	return w.b.addEntry(w.host, key, text, line)
}

// key returns the dotted key of a table or key/value and its line
func (w *tomlWalker) key(n *unstable.Node) ([]string, int) {
	var keys []string
	line := 0
	it := n.Key()
	for it.Next() {
		k := it.Node()
		if line == 0 {
			line = w.p.Shape(k.Raw).Start.Line
		}
		keys = append(keys, string(k.Data))
	}
	return keys, line
}

func tomlKind(k unstable.Kind) string {
	switch k {
	case unstable.InlineTable:
		return "table"
	case unstable.Array:
		return "array"
	case unstable.Bool:
		return "boolean"
	case unstable.Integer:
		return "integer"
	case unstable.Float:
		return "float"
	case unstable.LocalDate, unstable.LocalTime, unstable.LocalDateTime, unstable.DateTime:
		return "datetime"
	}
	return strings.ToLower(k.String())
}
