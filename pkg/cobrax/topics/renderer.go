package topics

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// Renderer formats raw topic content for the terminal. format is the file
// extension, including the dot.
type Renderer interface {
	Render(content string, format string) string
}

// PlainRenderer returns content unchanged
type PlainRenderer struct{}

func (r *PlainRenderer) Render(content string, format string) string {
	return content
}

// GlamourRenderer renders markdown topics with glamour. Other formats pass
// through untouched, as does markdown glamour fails to render.
type GlamourRenderer struct {
	// Style is a glamour style name or a path to a style file. Empty
	// means auto-detect from the terminal. Ignored when Plain is set.
	Style string

	// Plain renders without escape sequences or emphasis markers
	Plain bool

	// Width wraps output; 0 keeps glamour's default
	Width int
}

// NewGlamourRenderer returns a renderer for the given output. Without color
// the output keeps headings and lists but carries no escapes and no
// **strong** or *emphasis* markers.
func NewGlamourRenderer(color bool) *GlamourRenderer {
	return &GlamourRenderer{Plain: !color, Width: 80}
}

// plainStyle is glamour's notty style with inline emphasis markers removed
func plainStyle() ansi.StyleConfig {
	cfg := styles.NoTTYStyleConfig
	cfg.Emph = ansi.StylePrimitive{}
	cfg.Strong = ansi.StylePrimitive{}
	cfg.Strikethrough = ansi.StylePrimitive{}
	return cfg
}

func (r *GlamourRenderer) Render(content string, format string) string {
	if format != ".md" {
		return content
	}

	var options []glamour.TermRendererOption
	switch {
	case r.Plain:
		options = append(options, glamour.WithStyles(plainStyle()), glamour.WithColorProfile(termenv.Ascii))
	case r.Style != "":
		options = append(options, glamour.WithStylePath(r.Style))
	default:
		options = append(options, glamour.WithAutoStyle())
	}
	if r.Width > 0 {
		options = append(options, glamour.WithWordWrap(r.Width))
	}

	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
