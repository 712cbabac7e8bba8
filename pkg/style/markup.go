package style

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

var tagPattern = regexp.MustCompile(`\[(\w+)\](.*?)\[/(\w+)\]`)

// MarkupParser renders [tag]text[/tag] markup used in CLI messages
type MarkupParser struct {
	styles map[string]lipgloss.Style
	plain  bool
}

// NewMarkupParser creates a parser with the default tags. A plain parser
// drops the tags and keeps their text.
func NewMarkupParser(plain bool) *MarkupParser {
	return &MarkupParser{
		plain: plain,
		styles: map[string]lipgloss.Style{
			"title":   TitleStyle,
			"success": SuccessStyle,
			"error":   ErrorStyle,
			"warning": WarningStyle,
			"info":    InfoStyle,
			"path":    PathStyle,
			"muted":   MutedStyle,
			"host":    HostStyle,
			"bold":    lipgloss.NewStyle().Bold(true),
		},
	}
}

// Render replaces known tags with their styled content. Unknown or
// mismatched tags are left untouched. Tags do not nest.
func (p *MarkupParser) Render(text string) string {
	return tagPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := tagPattern.FindStringSubmatch(match)
		open, content, closing := parts[1], parts[2], parts[3]
		style, ok := p.styles[open]
		if !ok || open != closing {
			return match
		}
		if p.plain {
			return content
		}
		return style.Render(content)
	})
}
