package redaction

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_ScrubsRenderedResult(t *testing.T) {
	r, err := New(Config{DisableGitleaks: true, Literals: []string{"hunter2"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, r)

	rendered := "Success deploy (revision 3)\nlogin ok with hunter2\n"
	n, err := fmt.Fprint(w, rendered)
	require.NoError(t, err)
	assert.Equal(t, len(rendered), n, "reports the unredacted length")
	assert.Equal(t, "Success deploy (revision 3)\nlogin ok with [REDACTED]\n", buf.String())
}

func TestWriter_NilRedactorPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	_, err := w.Write([]byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", buf.String())
}

func TestWriter_SeesLiteralsTrackedLater(t *testing.T) {
	r, err := New(Config{DisableGitleaks: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, r)

	_, err = w.Write([]byte("token=s3cr3t-value\n"))
	require.NoError(t, err)
	r.Track("s3cr3t-value")
	_, err = w.Write([]byte("token=s3cr3t-value\n"))
	require.NoError(t, err)

	assert.Equal(t, "token=s3cr3t-value\ntoken=[REDACTED]\n", buf.String())
}

func TestWriter_ConcurrentWrites(t *testing.T) {
	r, err := New(Config{DisableGitleaks: true, Patterns: []string{`API_KEY=[A-Za-z0-9]+`}})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, r)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				_, _ = fmt.Fprintf(w, "worker %d run %d API_KEY=abc%d\n", i, j, j)
			}
		}()
	}
	wg.Wait()

	out := buf.String()
	assert.NotContains(t, out, "API_KEY=abc")
	assert.Equal(t, 8*50, bytes.Count(buf.Bytes(), []byte(redactedMarker)))
}

func TestWriter_EmptyWrite(t *testing.T) {
	r, err := New(Config{DisableGitleaks: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := NewWriter(&buf, r).Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())
}
