package output

import (
	"io"

	"github.com/goccy/go-yaml"
)

// YAMLFormatter formats values as YAML. Multi-line strings such as run
// output are written as literal blocks.
type YAMLFormatter struct {
	writer io.Writer
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(w io.Writer) *YAMLFormatter {
	return &YAMLFormatter{writer: w}
}

// Format writes v as one YAML document.
func (f *YAMLFormatter) Format(v any) error {
	encoder := yaml.NewEncoder(f.writer,
		yaml.Indent(2),
		yaml.UseLiteralStyleIfMultiline(true),
	)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
