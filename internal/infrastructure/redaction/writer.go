package redaction

import (
	"io"
	"sync"
)

// Writer wraps an io.Writer and redacts all data before writing.
// Safe for concurrent use.
type Writer struct {
	underlying io.Writer
	redactor   *Redactor
	mu         sync.Mutex
}

// NewWriter creates a redacting writer. A nil redactor passes data through.
func NewWriter(w io.Writer, r *Redactor) *Writer {
	return &Writer{
		underlying: w,
		redactor:   r,
	}
}

// Write implements io.Writer, redacting data before passing it on.
// It reports len(p) on success even when the redacted length differs.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.redactor == nil {
		return w.underlying.Write(p)
	}

	if _, err = w.underlying.Write([]byte(w.redactor.ScrubString(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
