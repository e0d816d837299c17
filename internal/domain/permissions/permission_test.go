package permissions

import (
	"encoding/json"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "Execute", want: KindExecute},
		{in: "execute", want: KindExecute},
		{in: "filesystem_read", want: KindFilesystemRead},
		{in: "3", want: KindExecute},
		{in: "NetAccess", want: KindNetAccess},
		{in: "teleport", wantErr: true},
		{in: "99", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	l, err := ParseLevel("high")
	require.NoError(t, err)
	assert.Equal(t, LevelHigh, l)

	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelUnspecified, l)

	_, err = ParseLevel("extreme")
	assert.Error(t, err)
}

func TestPermission_JSON(t *testing.T) {
	t.Parallel()

	t.Run("accepts ordinal enums", func(t *testing.T) {
		var p Permission
		err := json.Unmarshal([]byte(`{"display_name":"Exec","kind":3,"level":2,"resource":["ls"]}`), &p)
		require.NoError(t, err)
		assert.Equal(t, KindExecute, p.Kind)
		assert.Equal(t, LevelHigh, p.Level)
		assert.Equal(t, []string{"ls"}, p.Resource)
	})

	t.Run("writes names", func(t *testing.T) {
		data, err := json.Marshal(New(KindFilesystemRead, "/tmp"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"kind":"FilesystemRead"`)
	})
}

func TestPermission_YAML(t *testing.T) {
	t.Parallel()

	src := `
function_id: "*"
granted:
  - kind: Execute
    level: Medium
    resource: ["echo hi"]
`
	var g FunctionGrant
	require.NoError(t, yaml.Unmarshal([]byte(src), &g))
	assert.True(t, g.IsWildcard())
	require.Len(t, g.Granted, 1)
	assert.Equal(t, KindExecute, g.Granted[0].Kind)
	assert.Equal(t, LevelMedium, g.Granted[0].Level)
}

func TestPermission_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Execute", New(KindExecute).String())
	assert.Equal(t, "FilesystemRead[High](/a, /b)", New(KindFilesystemRead, "/a", "/b").WithLevel(LevelHigh).String())
	assert.Equal(t, []Kind{KindExecute, KindNetAccess}, Set{New(KindExecute), New(KindNetAccess), New(KindExecute)}.Kinds())
}
