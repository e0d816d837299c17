package jsvm

import (
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Console captures console output of a script as text lines.
type Console struct {
	loop *Loop
	mu   sync.Mutex
	buf  strings.Builder
}

func newConsole(l *Loop) *Console {
	return &Console{loop: l}
}

// String returns everything written so far.
func (c *Console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Flush returns everything written so far and clears the buffer.
func (c *Console) Flush() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf.String()
	c.buf.Reset()
	return out
}

// Println appends one line.
func (c *Console) Println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
}

func (c *Console) object() *goja.Object {
	obj := c.loop.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = obj.Set(name, c.write)
	}
	return obj
}

func (c *Console) write(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = c.loop.Format(arg)
	}
	c.Println(strings.Join(parts, " "))
	return goja.Undefined()
}

// Format renders a value the way console.log does: strings verbatim,
// errors and functions via toString, other objects as JSON.
func (l *Loop) Format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn || obj.ClassName() == "Error" {
		return v.String()
	}
	if s, err := l.ToJSON(v); err == nil {
		return s
	}
	return v.String()
}
