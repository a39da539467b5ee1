package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostkit/pkg/engine"
)

// writeStructured encodes v as JSON or YAML. It reports false for text
// output, which each command renders itself.
func writeStructured(w io.Writer, format engine.Format, v interface{}) (bool, error) {
	switch format {
	case engine.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case engine.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	changeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	badStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// paint renders s with style when color output is on.
func paint(style lipgloss.Style, s string) string {
	if !colorOutput() {
		return s
	}
	return style.Render(s)
}

func printHeader(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, paint(headerStyle, fmt.Sprintf(format, args...)))
}
