package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/reglet-dev/flowgate/internal/application/dto"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/domain/permissions"
	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/reglet-dev/flowgate/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ranAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleResults() *dto.ListResultsResponse {
	return &dto.ListResultsResponse{
		CodeID: "c1",
		Results: []*workflow.Result{
			{ID: values.NewResultID(), CodeID: "c1", Revision: 1, Type: workflow.ResultSuccess, Text: "hello\nworld\n", RanAt: ranAt},
			{ID: values.NewResultID(), CodeID: "c1", Revision: 2, Type: workflow.ResultFailure, ExitCode: 3, Text: "Error: boom", RanAt: ranAt.Add(time.Minute)},
		},
	}
}

func TestTableFormatter_Results(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	formatter.EnableColor = false

	require.NoError(t, formatter.Format(sampleResults()))

	out := buf.String()
	assert.Contains(t, out, "REV")
	assert.Contains(t, out, "Success")
	assert.Contains(t, out, "Failure")
	assert.Contains(t, out, "hello …")
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, "2026-03-01T12:01:00Z")
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	formatter.EnableColor = false

	require.NoError(t, formatter.Format(&dto.ListResultsResponse{CodeID: "c9"}))
	require.NoError(t, formatter.Format([]dto.PluginSummary{}))
	require.NoError(t, formatter.Format(&dto.ReconcileReport{}))

	out := buf.String()
	assert.Contains(t, out, "No results for c9.")
	assert.Contains(t, out, "No plugins installed.")
	assert.Contains(t, out, "Plugins are in sync.")
}

func TestTableFormatter_Run(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	formatter.EnableColor = false

	resp := &dto.RunWorkflowResponse{
		Result: &workflow.Result{CodeID: "c1", Revision: 4, Type: workflow.ResultCancelled, ExitCode: 1, Text: "partial"},
		RunID:  "run-1",
	}
	require.NoError(t, formatter.Format(resp))

	out := buf.String()
	assert.Contains(t, out, "Cancelled c1 (revision 4)")
	assert.Contains(t, out, "Exit code: 1")
	assert.Contains(t, out, "partial\n")
}

func TestTableFormatter_PluginsAndReconcile(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	formatter.EnableColor = false

	require.NoError(t, formatter.Format([]dto.PluginSummary{
		{ID: "acme/tools/1.0.0", Namespace: "acme.tools", Status: "installed", InstalledAt: ranAt},
		{ID: "acme/tools/2.0.0", Namespace: "acme.tools", Status: "installed", Missing: true, InstalledAt: ranAt},
	}))
	require.NoError(t, formatter.Format(&dto.ReconcileReport{
		MarkedMissing: []string{"acme/tools/2.0.0"},
		Orphans:       []string{"x/y/1.0.0"},
	}))

	out := buf.String()
	assert.Contains(t, out, "acme/tools/1.0.0")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "Marked missing:\n  - acme/tools/2.0.0")
	assert.Contains(t, out, "Orphan directories:\n  - x/y/1.0.0")
	assert.NotContains(t, out, "Restored")
}

func TestTableFormatter_Catalog(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	formatter.EnableColor = false

	entries := []capability.CatalogEntry{{
		PackageID:  "app.flowgate.core.filesystem",
		Namespace:  "fs",
		Provenance: "internal",
		Functions: []capability.Function{{
			ID:          "app.flowgate.core.filesystem.read",
			Name:        "read",
			ArgumentDoc: "path",
			Required:    permissions.NewSet(permissions.New(permissions.KindFilesystemRead)),
		}},
	}}
	require.NoError(t, formatter.Format(entries))

	out := buf.String()
	assert.Contains(t, out, "app.flowgate.core.filesystem.read")
	assert.Contains(t, out, "fs.read(path)")
	assert.Contains(t, out, "FilesystemRead")
}

func TestTableFormatter_Unsupported(t *testing.T) {
	err := NewTableFormatter(&bytes.Buffer{}).Format(42)
	assert.ErrorContains(t, err, "does not support int")
}

func TestJSONFormatter_Format(t *testing.T) {
	t.Parallel()

	for _, indent := range []bool{true, false} {
		var buf bytes.Buffer
		require.NoError(t, NewJSONFormatter(&buf, indent).Format(sampleResults()))

		var decoded dto.ListResultsResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "c1", decoded.CodeID)
		require.Len(t, decoded.Results, 2)
		assert.Equal(t, workflow.ResultFailure, decoded.Results[1].Type)
		assert.Equal(t, 3, decoded.Results[1].ExitCode)

		if indent {
			assert.Contains(t, buf.String(), "\n  \"code_id\"")
		} else {
			assert.NotContains(t, buf.String(), "\n  ")
		}
	}
}

func TestJSONFormatter_KeepsMarkup(t *testing.T) {
	var buf bytes.Buffer
	resp := &dto.ListResultsResponse{CodeID: "html", Results: []*workflow.Result{
		{ID: values.NewResultID(), CodeID: "html", Revision: 1, Type: workflow.ResultSuccess, Text: "<b>a & b</b>", RanAt: ranAt},
	}}

	require.NoError(t, NewJSONFormatter(&buf, false).Format(resp))
	assert.Contains(t, buf.String(), `"text":"<b>a & b</b>"`)
}

func TestYAMLFormatter_Format(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	require.NoError(t, NewYAMLFormatter(&buf).Format(sampleResults()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "c1", decoded["code_id"])
	assert.Contains(t, buf.String(), "result_type: Failure")
	assert.Contains(t, buf.String(), "revision: 2")
	assert.Contains(t, buf.String(), "text: |", "multi-line output is a literal block")

	results, ok := decoded["results"].([]any)
	require.True(t, ok)
	first, ok := results[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello\nworld\n", first["text"])
}
