package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
)

var (
	successColor = lipgloss.Color("#10B981")
	failureColor = lipgloss.Color("#EF4444")
	warnColor    = lipgloss.Color("#F59E0B")
	mutedColor   = lipgloss.Color("#6B7280")
	accentColor  = lipgloss.Color("#3B82F6")
)

// TableFormatter formats values as human-readable tables.
type TableFormatter struct {
	writer      io.Writer
	EnableColor bool
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{
		writer:      w,
		EnableColor: true, // Default to true, caller can disable
	}
}

func (f *TableFormatter) style(color lipgloss.Color) lipgloss.Style {
	s := lipgloss.NewStyle()
	if f.EnableColor {
		s = s.Foreground(color)
	}
	return s
}

func (f *TableFormatter) bold(text string) string {
	if !f.EnableColor {
		return text
	}
	return lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(text)
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.style(mutedColor)).
		Headers(headers...)
}

// Format writes v as a table. It accepts the response types of the CLI
// commands.
//
//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) Format(v any) error {
	switch val := v.(type) {
	case *dto.RunWorkflowResponse:
		f.formatRun(val)
	case *dto.ListResultsResponse:
		f.formatResults(val)
	case []dto.PluginSummary:
		f.formatPlugins(val)
	case *dto.InstallPluginResponse:
		fmt.Fprintf(f.writer, "Installed %s\n", f.bold(val.ID))
		fmt.Fprintf(f.writer, "  Directory: %s\n", val.InstallDir)
		fmt.Fprintf(f.writer, "  Functions: %s\n", strings.Join(val.Functions, ", "))
	case *dto.ReconcileReport:
		f.formatReconcile(val)
	case []capability.CatalogEntry:
		f.formatCatalog(val)
	default:
		return fmt.Errorf("table output does not support %T", v)
	}
	return nil
}

func (f *TableFormatter) resultStyle(t workflow.ResultType) lipgloss.Style {
	switch t {
	case workflow.ResultSuccess:
		return f.style(successColor)
	case workflow.ResultCancelled:
		return f.style(warnColor)
	default:
		return f.style(failureColor)
	}
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatRun(resp *dto.RunWorkflowResponse) {
	r := resp.Result
	fmt.Fprintf(f.writer, "%s %s (revision %d)\n",
		f.resultStyle(r.Type).Render(string(r.Type)), f.bold(r.CodeID), r.Revision)
	fmt.Fprintf(f.writer, "Run:       %s\n", resp.RunID)
	fmt.Fprintf(f.writer, "Exit code: %d\n", r.ExitCode)
	fmt.Fprintf(f.writer, "Duration:  %s\n", resp.Metadata.Duration.Round(time.Millisecond))
	if r.Text != "" {
		fmt.Fprintln(f.writer, f.style(mutedColor).Render(strings.Repeat("─", 60)))
		fmt.Fprint(f.writer, r.Text)
		if !strings.HasSuffix(r.Text, "\n") {
			fmt.Fprintln(f.writer)
		}
	}
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatResults(resp *dto.ListResultsResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintf(f.writer, "No results for %s.\n", resp.CodeID)
		return
	}

	t := f.newTable("REV", "TYPE", "EXIT", "RAN AT", "OUTPUT")
	for _, r := range resp.Results {
		t.Row(
			fmt.Sprint(r.Revision),
			f.resultStyle(r.Type).Render(string(r.Type)),
			fmt.Sprint(r.ExitCode),
			r.RanAt.Format(time.RFC3339),
			firstLine(r.Text, 60),
		)
	}
	fmt.Fprintln(f.writer, t.Render())
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatPlugins(plugins []dto.PluginSummary) {
	if len(plugins) == 0 {
		fmt.Fprintln(f.writer, "No plugins installed.")
		return
	}

	t := f.newTable("PLUGIN", "NAMESPACE", "STATUS", "INSTALLED")
	for _, p := range plugins {
		status := f.style(successColor).Render(p.Status)
		if p.Missing {
			status = f.style(failureColor).Render("missing")
		} else if p.Status != "installed" {
			status = f.style(warnColor).Render(p.Status)
		}
		t.Row(p.ID, p.Namespace, status, p.InstalledAt.Format(time.RFC3339))
	}
	fmt.Fprintln(f.writer, t.Render())
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatReconcile(report *dto.ReconcileReport) {
	if !report.Changed() && len(report.Orphans) == 0 {
		fmt.Fprintln(f.writer, "Plugins are in sync.")
		return
	}
	sections := []struct {
		title string
		ids   []string
		color lipgloss.Color
	}{
		{"Marked missing", report.MarkedMissing, failureColor},
		{"Restored", report.Restored, successColor},
		{"Removed pending", report.RemovedPending, warnColor},
		{"Orphan directories", report.Orphans, mutedColor},
	}
	for _, s := range sections {
		if len(s.ids) == 0 {
			continue
		}
		fmt.Fprintf(f.writer, "%s:\n", f.style(s.color).Render(s.title))
		for _, id := range s.ids {
			fmt.Fprintf(f.writer, "  - %s\n", id)
		}
	}
}

//nolint:errcheck // Best-effort terminal output
func (f *TableFormatter) formatCatalog(entries []capability.CatalogEntry) {
	t := f.newTable("FUNCTION", "CALL", "PERMISSIONS", "SOURCE")
	for _, e := range entries {
		for _, fn := range e.Functions {
			call := fn.Name
			if e.Namespace != "" {
				call = e.Namespace + "." + fn.Name
			}
			t.Row(fn.ID, call+"("+fn.ArgumentDoc+")", fn.Required.String(), e.Provenance)
		}
	}
	fmt.Fprintln(f.writer, t.Render())
}

// firstLine returns the first line of text truncated to limit runes.
func firstLine(text string, limit int) string {
	line, _, more := strings.Cut(strings.TrimRight(text, "\n"), "\n")
	runes := []rune(line)
	if len(runes) > limit {
		return string(runes[:limit-1]) + "…"
	}
	if more {
		return line + " …"
	}
	return line
}
