package values

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePluginPackageID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "acme/tools/1.0.0"},
		{name: "trims", input: "  acme/tools/1.0.0 "},
		{name: "prerelease", input: "acme/tools/1.0.0-rc.1"},
		{name: "too few segments", input: "acme/tools", wantErr: true},
		{name: "too many segments", input: "a/b/c/d", wantErr: true},
		{name: "empty segment", input: "acme//1.0.0", wantErr: true},
		{name: "traversal", input: "../tools/1.0.0", wantErr: true},
		{name: "dot segment", input: "acme/./1.0.0", wantErr: true},
		{name: "underscore", input: "acme/tools_v2/1.0.0"},
		{name: "dotted author", input: "a.b/c/1.0.0", wantErr: true},
		{name: "dotted package", input: "a/b.c/1.0.0", wantErr: true},
		{name: "dashed author", input: "a-b/c/1.0.0", wantErr: true},
		{name: "dashed package", input: "a/b-c/1.0.0", wantErr: true},
		{name: "leading digit", input: "1acme/tools/1.0.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParsePluginPackageID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "acme", id.Author())
			assert.Contains(t, []string{"tools", "tools_v2"}, id.Package())
		})
	}
}

func TestPluginPackageID_Derived(t *testing.T) {
	t.Parallel()

	id := MustParsePluginPackageID("acme/tools/1.0.0")

	assert.Equal(t, "acme/tools/1.0.0", id.String())
	assert.Equal(t, "acme.tools", id.Namespace())
	assert.Equal(t, "acme-tools-1.0.0-ping", id.FunctionID("ping"))
	assert.True(t, id.Equals(MustParsePluginPackageID("acme/tools/1.0.0")))
	assert.False(t, id.IsZero())
	assert.True(t, PluginPackageID{}.IsZero())
}

func TestPluginPackageID_DistinctIDsDoNotCollide(t *testing.T) {
	t.Parallel()

	// "a.b/c" and "a/b.c" would share namespace "a.b.c"; "a-b/c" and
	// "a/b-c" would share function id prefix "a-b-c-". Both are rejected
	// so the derived keys stay unique per id.
	for _, input := range []string{"a.b/c/1", "a/b.c/1", "a-b/c/1", "a/b-c/1"} {
		_, err := ParsePluginPackageID(input)
		assert.Error(t, err, input)
	}

	x := MustParsePluginPackageID("ab/c/1")
	y := MustParsePluginPackageID("a/bc/1")
	assert.NotEqual(t, x.Namespace(), y.Namespace())
	assert.NotEqual(t, x.FunctionID("f"), y.FunctionID("f"))
}

func TestPluginPackageID_JSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		ID PluginPackageID `json:"id"`
	}

	data, err := json.Marshal(wrapper{ID: MustParsePluginPackageID("a/p/1.0.0")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a/p/1.0.0"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, "a/p/1.0.0", w.ID.String())

	assert.Error(t, json.Unmarshal([]byte(`{"id":"nope"}`), &w))
}

func TestResultID(t *testing.T) {
	t.Parallel()

	id := NewResultID()
	assert.False(t, id.IsZero())

	parsed, err := ParseResultID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseResultID("not-a-uuid")
	assert.Error(t, err)
}
