package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yycnik/json-log-parser/internal/model"
)

// Renderer writes a Report to an output stream.
type Renderer interface {
	Render(w io.Writer, r model.Report) error
}

// New returns the renderer for format: text, json or table.
func New(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return TextRenderer{}, nil
	case "json":
		return JSONRenderer{}, nil
	case "table":
		return TableRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or table)", format)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer
// ---------------------------------------------------------------------------

// TextRenderer prints one "<extension>: <count>" line per extension, sorted
// by extension.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, r model.Report) error {
	for _, row := range r.Extensions.Sorted() {
		if _, err := fmt.Fprintf(w, "%s: %d\n", row.Extension, row.Count); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints the whole report as a single JSON object per line.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, r model.Report) error {
	return json.NewEncoder(w).Encode(r)
}

// ---------------------------------------------------------------------------
// Table Renderer (terminal output)
// ---------------------------------------------------------------------------

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleCount  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleNone   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleFooter = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// TableRenderer prints an aligned table followed by a line summary.
type TableRenderer struct{}

func (TableRenderer) Render(w io.Writer, r model.Report) error {
	rows := r.Extensions.Sorted()

	extWidth, countWidth := len("EXTENSION"), len("FILES")
	for _, row := range rows {
		extWidth = max(extWidth, lipgloss.Width(row.Extension))
		countWidth = max(countWidth, len(strconv.Itoa(row.Count)))
	}

	var b strings.Builder
	b.WriteString(styleHeader.Render(fmt.Sprintf("%-*s  %*s", extWidth, "EXTENSION", countWidth, "FILES")))
	b.WriteByte('\n')
	for _, row := range rows {
		ext := fmt.Sprintf("%-*s", extWidth, row.Extension)
		if row.Extension == model.NoExtension {
			ext = styleNone.Render(ext)
		}
		b.WriteString(ext)
		b.WriteString("  ")
		b.WriteString(styleCount.Render(fmt.Sprintf("%*d", countWidth, row.Count)))
		b.WriteByte('\n')
	}

	summary := fmt.Sprintf("%d unique files, %d of %d lines valid", r.UniqueFiles, r.ValidLines, r.TotalLines)
	b.WriteString(styleFooter.Render(summary))
	if r.InvalidLines > 0 {
		b.WriteString(" ")
		b.WriteString(styleFailed.Render(fmt.Sprintf("(%d rejected)", r.InvalidLines)))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
