package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFunctionNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "functions block",
			text: `functions: { add: { handler: (a, b) => a + b }, sub: { handler: (a, b) => a - b } }`,
			want: []string{"add", "sub"},
		},
		{
			name: "fallback handler scan",
			text: `const pkg = { foo: { handler: async () => {} } };`,
			want: []string{"foo"},
		},
		{
			name: "nested objects are not functions",
			text: `functions: {
				ping: {
					parameters: [{ idx: 0, name: "host" }],
					options: { retries: 3 },
					handler: (host) => host,
				},
			}`,
			want: []string{"ping"},
		},
		{
			name: "quoted keys and comments",
			text: `functions: {
				// "commented": {},
				"quoted": { handler() {} },
				/* skip: {} */
				plain: { description: "has } and { in it", handler: () => 1 }
			}`,
			want: []string{"quoted", "plain"},
		},
		{
			name: "non-object values are skipped",
			text: `functions: { count: 3, helper: () => {}, real: { handler: () => {} } }`,
			want: []string{"real"},
		},
		{
			name: "duplicates collapse",
			text: `functions: { a: {}, a: {} }`,
			want: []string{"a"},
		},
		{
			name: "empty functions block falls back to handler scan",
			text: `const defaults = { functions: {} };
				const pkg = { greet: { handler: (name) => "hi " + name } };`,
			want: []string{"greet"},
		},
		{
			name: "functions block without object values falls back",
			text: `const cfg = { functions: { enabled: true } };
				globalThis.api = { lookup: { parameters: [], handler: async () => 1 } };`,
			want: []string{"lookup"},
		},
		{
			name: "reserved keys excluded from fallback",
			text: `meta: { handler: 1 }, run: { handler: 2 }`,
			want: []string{"run"},
		},
		{
			name: "nothing found",
			text: `console.log("hello")`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFunctionNames(tt.text))
		})
	}
}

func TestExtractFunctionNames_Fixtures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file string
		want []string
	}{
		{file: "math_plugin.js", want: []string{"add", "process_data"}},
		{file: "error_plugin.js", want: []string{"throw_immediate", "throw_async", "async_success", "return_null", "no_op"}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			text, err := os.ReadFile(filepath.Join("testdata", tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ExtractFunctionNames(string(text)))
		})
	}
}
