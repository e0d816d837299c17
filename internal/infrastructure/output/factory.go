// Package output renders command results as tables, JSON, or YAML.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/reglet-dev/flowgate/internal/application/ports"
)

// FormatterFactory creates formatters by name.
type FormatterFactory struct{}

// NewFormatterFactory creates a new formatter factory.
func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

// Create returns a formatter for the given format name. Names are
// case-insensitive; "yml" is accepted for YAML and an empty name means table.
func (f *FormatterFactory) Create(
	format string,
	writer io.Writer,
	options ports.FormatterOptions,
) (ports.OutputFormatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "table", "":
		table := NewTableFormatter(writer)
		table.EnableColor = !options.NoColor
		return table, nil
	case "json":
		return NewJSONFormatter(writer, options.Indent), nil
	case "yaml", "yml":
		return NewYAMLFormatter(writer), nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: %s)",
			format, strings.Join(f.SupportedFormats(), ", "))
	}
}

// SupportedFormats returns the canonical format names.
func (f *FormatterFactory) SupportedFormats() []string {
	return []string{"table", "json", "yaml"}
}
