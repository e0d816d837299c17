package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	rels []string
}

func (r *recorder) handle(_ context.Context, _, rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rels = append(r.rels, rel)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rels...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, rec.handle, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Dir: t.TempDir(), Pattern: "[unclosed"}, nil, nil)
	assert.ErrorContains(t, err, "invalid watch pattern")

	w, err := New(Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPattern, w.pattern)
	assert.Equal(t, defaultDebounce, w.debounce)
}

func TestWatcher_Match(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		path    string
		wantRel string
		want    bool
	}{
		{path: filepath.Join(dir, "a.js"), wantRel: "a.js", want: true},
		{path: filepath.Join(dir, "nested", "deep", "b.js"), wantRel: "nested/deep/b.js", want: true},
		{path: filepath.Join(dir, "notes.txt"), want: false},
		{path: filepath.Join(dir, "a.js.swp"), want: false},
		{path: filepath.Join(filepath.Dir(dir), "outside.js"), want: false},
		{path: dir, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rel, ok := w.Match(tt.path)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.wantRel, rel)
			}
		})
	}
}

func TestWatcher_Existing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.js"), []byte("1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.js"), []byte("1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("1"), 0o600))

	w, err := New(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	paths, err := w.Existing()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.js"), filepath.Join(dir, "sub", "a.js")}, paths)

	missing, err := New(Config{Dir: filepath.Join(dir, "nope")}, nil, nil)
	require.NoError(t, err)
	paths, err = missing.Existing()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWatcher_RunsChangedScripts(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))
	script := filepath.Join(dir, "hello.js")
	require.NoError(t, os.WriteFile(script, []byte(`console.log("hi")`), 0o600))
	// a burst of writes collapses into one run
	require.NoError(t, os.WriteFile(script, []byte(`console.log("hi again")`), 0o600))

	require.Eventually(t, func() bool { return len(rec.seen()) >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"hello.js"}, rec.seen())
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	sub := filepath.Join(dir, "team")
	require.NoError(t, os.Mkdir(sub, 0o750))
	// give the watcher a moment to register the new directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "job.js"), []byte("1"), 0o600))

	require.Eventually(t, func() bool {
		seen := rec.seen()
		return len(seen) == 1 && seen[0] == "team/job.js"
	}, 5*time.Second, 20*time.Millisecond)
}
