package style

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/pterm/pterm"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/executor"
	"github.com/arthur-debert/dosync/pkg/types"
)

// DetectColor reports whether styled output should be written to f
func DetectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return termenv.NewOutput(f).ColorProfile() != termenv.Ascii
}

// Renderer writes results, plans and host listings
type Renderer struct {
	w      io.Writer
	color  bool
	markup *MarkupParser
}

// NewRenderer returns a renderer writing to w. Without color every line is
// plain text.
func NewRenderer(w io.Writer, color bool) *Renderer {
	if color {
		lipgloss.SetDefaultRenderer(lipgloss.NewRenderer(w))
		pterm.EnableColor()
	} else {
		pterm.DisableColor()
	}
	return &Renderer{w: w, color: color, markup: NewMarkupParser(!color)}
}

func (r *Renderer) paint(st lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return st.Render(s)
}

// Markup renders a message containing [tag]..[/tag] markup
func (r *Renderer) Markup(format string, args ...interface{}) {
	fmt.Fprintln(r.w, r.markup.Render(fmt.Sprintf(format, args...)))
}

// Warn writes a warning line
func (r *Renderer) Warn(format string, args ...interface{}) {
	fmt.Fprintf(r.w, "%s %s\n", r.paint(WarningStyle, WarningIndicator), fmt.Sprintf(format, args...))
}

// Error writes err as a failure line
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.w, "%s %s\n", r.paint(ErrorStyle, ErrorIndicator), errors.Describe(err))
}

func (r *Renderer) item(item types.TransferItem) string {
	st := PushStyle
	if item.Direction == types.Pull {
		st = PullStyle
	}
	return fmt.Sprintf("%s %s/%s", r.paint(st, string(item.Direction)), r.paint(HostStyle, item.Hostname), item.LogicalName)
}

// Result writes one line for a transfer result followed by its changes
func (r *Renderer) Result(res types.TransferResult, dryRun bool) {
	switch {
	case !res.OK:
		fmt.Fprintf(r.w, "%s %s: %s\n", r.paint(ErrorStyle, ErrorIndicator), r.item(res.Item), errors.Describe(res.Err))
	case dryRun:
		fmt.Fprintf(r.w, "%s %s %s\n", r.paint(InfoStyle, SkippedIndicator), r.item(res.Item), r.paint(MutedStyle, "(dry run)"))
	case res.Skipped:
		fmt.Fprintf(r.w, "%s %s %s\n", r.paint(MutedStyle, SkippedIndicator), r.item(res.Item), r.paint(MutedStyle, "(up to date)"))
	default:
		fmt.Fprintf(r.w, "%s %s\n", r.paint(SuccessStyle, SuccessIndicator), r.item(res.Item))
	}
	for _, change := range res.Changes {
		fmt.Fprintf(r.w, "    %s\n", r.paint(MutedStyle, change))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(r.w, "    %s %s\n", r.paint(WarningStyle, WarningIndicator), warning)
	}
}

// Summary writes the closing line of a run
func (r *Renderer) Summary(s executor.Summary, dryRun bool) {
	if s.Total == 0 {
		fmt.Fprintln(r.w, r.paint(MutedStyle, "Nothing to transfer"))
		return
	}

	parts := []string{fmt.Sprintf("%d transferred", s.Succeeded-s.Skipped)}
	if s.Skipped > 0 {
		label := "up to date"
		if dryRun {
			label = "checked"
		}
		parts = append(parts, fmt.Sprintf("%d %s", s.Skipped, label))
	}
	if s.Failed > 0 {
		parts = append(parts, r.paint(ErrorStyle, fmt.Sprintf("%d failed", s.Failed)))
	}

	line := strings.Join(parts, ", ")
	if s.Failed > 0 {
		line += fmt.Sprintf(" (hosts: %s)", strings.Join(s.FailedHosts, ", "))
	}
	if dryRun {
		line += " " + r.paint(WarningStyle, "[dry run]")
	}
	fmt.Fprintln(r.w, r.paint(TitleStyle, "Summary:")+" "+line)
}

// Plan writes the items of a plan without executing them
func (r *Renderer) Plan(items []types.TransferItem) {
	if len(items) == 0 {
		fmt.Fprintln(r.w, r.paint(MutedStyle, "Nothing to transfer"))
		return
	}
	for _, it := range items {
		fmt.Fprintf(r.w, "%s %s\n    %s -> %s\n",
			r.paint(InfoStyle, PendingIndicator), r.item(it),
			r.paint(PathStyle, it.Source()), r.paint(PathStyle, it.Destination()))
	}
}

// Hosts writes a table of the configured hosts. local names this machine's
// entry, if any.
func (r *Renderer) Hosts(cfg *types.Configuration, local string) error {
	if len(cfg.Order) == 0 {
		fmt.Fprintln(r.w, r.paint(MutedStyle, "No hosts configured in "+cfg.Source))
		return nil
	}

	data := pterm.TableData{{"HOST", "BASE PATH", "FILES", "ALIASES"}}
	for _, h := range cfg.HostEntries() {
		name := h.Hostname
		if name == local {
			name += " (local)"
		}
		base := h.BasePath
		if base == "" {
			base = "~"
		}
		data = append(data, []string{name, base, strconv.Itoa(len(h.Files)), strings.Join(cfg.AliasesFor(h.Hostname), ", ")})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to render host table")
	}
	fmt.Fprintln(r.w, r.paint(TitleStyle, "Hosts in "+cfg.Source))
	fmt.Fprintln(r.w, table)
	return nil
}
