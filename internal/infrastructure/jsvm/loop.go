// Package jsvm wraps a goja runtime with a single-goroutine event loop:
// promise settlement from Go work, timers, console capture, and context
// driven interruption.
package jsvm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// ErrUnsettled is returned by Await when a promise can never settle
// because no Go work or timer is outstanding.
var ErrUnsettled = errors.New("promise never settled: no pending work")

// deferredSource builds a promise together with its settle functions.
const deferredSource = `(function () {
	let resolve, reject;
	const promise = new Promise((res, rej) => { resolve = res; reject = rej; });
	return { promise, resolve, reject };
})`

// Loop owns one goja runtime. All methods except the work functions passed
// to Go must be called from the goroutine that drives the loop.
type Loop struct {
	vm       *goja.Runtime
	console  *Console
	deferred goja.Callable
	jobs     chan func()
	done     chan struct{}
	once     sync.Once

	// pending counts outstanding Go work and armed timers. It is only
	// touched on the loop goroutine.
	pending int
	timers  map[int64]*timer
	nextID  int64
	ctx     context.Context
}

type timer struct {
	t *time.Timer
}

// New creates a loop with a fresh runtime, a console, and timer globals.
func New() (*Loop, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	deferredFn, err := vm.RunString(deferredSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile deferred helper: %w", err)
	}
	deferred, ok := goja.AssertFunction(deferredFn)
	if !ok {
		return nil, fmt.Errorf("deferred helper is not callable")
	}

	l := &Loop{
		vm:       vm,
		deferred: deferred,
		jobs:     make(chan func(), 64),
		done:     make(chan struct{}),
		timers:   make(map[int64]*timer),
		ctx:      context.Background(),
	}
	l.console = newConsole(l)

	if err := l.installGlobals(); err != nil {
		return nil, err
	}
	return l, nil
}

// Runtime exposes the underlying goja runtime.
func (l *Loop) Runtime() *goja.Runtime { return l.vm }

// Context returns the context of the current evaluation.
func (l *Loop) Context() context.Context { return l.ctx }

// Console returns the console bound to the runtime.
func (l *Loop) Console() *Console { return l.console }

// Close releases timers and unblocks outstanding work. The loop must not
// be used afterwards.
func (l *Loop) Close() {
	l.once.Do(func() {
		for id, t := range l.timers {
			t.t.Stop()
			delete(l.timers, id)
		}
		close(l.done)
	})
}

// Run evaluates src as a script named name. The context bounds the whole
// evaluation: when it ends the runtime is interrupted. Run does not wait
// for promises; see Await and Drain.
func (l *Loop) Run(ctx context.Context, name, src string) (goja.Value, error) {
	l.ctx = ctx
	l.vm.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() {
		l.vm.Interrupt(ctx.Err())
	})
	defer stop()

	v, err := l.vm.RunScript(name, src)
	if err != nil {
		return nil, l.convertError(ctx, err)
	}
	return v, nil
}

// Call invokes a JS function value on the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn goja.Value, args ...goja.Value) (goja.Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("value is not a function")
	}

	l.ctx = ctx
	l.vm.ClearInterrupt()
	stop := context.AfterFunc(ctx, func() {
		l.vm.Interrupt(ctx.Err())
	})
	defer stop()

	v, err := callable(goja.Undefined(), args...)
	if err != nil {
		return nil, l.convertError(ctx, err)
	}
	return v, nil
}

// Go runs work on a new goroutine and returns a promise that is settled on
// the loop goroutine with work's result. A returned error rejects the
// promise with a JS error carrying the Go error.
func (l *Loop) Go(work func(ctx context.Context) (any, error)) goja.Value {
	d, err := l.deferred(goja.Undefined())
	if err != nil {
		panic(l.vm.NewGoError(err))
	}
	obj := d.ToObject(l.vm)
	resolve, _ := goja.AssertFunction(obj.Get("resolve"))
	reject, _ := goja.AssertFunction(obj.Get("reject"))

	l.pending++
	ctx := l.ctx
	go func() {
		result, werr := work(ctx)
		l.post(func() {
			l.pending--
			if werr != nil {
				_, _ = reject(goja.Undefined(), l.NewError(werr))
				return
			}
			_, _ = resolve(goja.Undefined(), l.vm.ToValue(result))
		})
	}()

	return obj.Get("promise")
}

// post queues job for the loop goroutine. Jobs posted after Close are
// dropped.
func (l *Loop) post(job func()) {
	select {
	case l.jobs <- job:
	case <-l.done:
	}
}

// Await drives the loop until v settles. Non-promise values are returned
// unchanged. A rejection is returned as an error.
func (l *Loop) Await(ctx context.Context, v goja.Value) (goja.Value, error) {
	if v == nil {
		return goja.Undefined(), nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}

	for {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, l.valueError(p.Result())
		}

		if l.pending == 0 {
			return nil, ErrUnsettled
		}
		if err := l.step(ctx); err != nil {
			return nil, err
		}
	}
}

// Drain runs queued jobs until no Go work or timer is outstanding.
func (l *Loop) Drain(ctx context.Context) error {
	for l.pending > 0 {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Pending reports the number of outstanding Go work items and timers.
func (l *Loop) Pending() int { return l.pending }

func (l *Loop) step(ctx context.Context) (err error) {
	select {
	case job := <-l.jobs:
		stop := context.AfterFunc(ctx, func() {
			l.vm.Interrupt(ctx.Err())
		})
		defer stop()
		defer func() {
			if r := recover(); r != nil {
				err = l.recovered(ctx, r)
			}
		}()
		job()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recovered converts a panic raised while running a job. Interrupts show
// up here when a timer callback is stopped by the context.
func (l *Loop) recovered(ctx context.Context, r any) error {
	if err, ok := r.(error); ok {
		return l.convertError(ctx, err)
	}
	return fmt.Errorf("panic in event loop job: %v", r)
}

func (l *Loop) installGlobals() error {
	if err := l.vm.Set("console", l.console.object()); err != nil {
		return err
	}
	if err := l.vm.Set("setTimeout", l.setTimeout); err != nil {
		return err
	}
	return l.vm.Set("clearTimeout", l.clearTimeout)
}

func (l *Loop) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	var extra []goja.Value
	if len(call.Arguments) > 2 {
		extra = append(extra, call.Arguments[2:]...)
	}

	l.nextID++
	id := l.nextID
	l.pending++

	t := &timer{}
	t.t = time.AfterFunc(delay, func() {
		l.post(func() {
			if _, armed := l.timers[id]; !armed {
				return
			}
			delete(l.timers, id)
			l.pending--
			if _, err := fn(goja.Undefined(), extra...); err != nil {
				panic(err)
			}
		})
	})
	l.timers[id] = t

	return l.vm.ToValue(id)
}

func (l *Loop) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := l.timers[id]; ok {
		t.t.Stop()
		delete(l.timers, id)
		l.pending--
	}
	return goja.Undefined()
}
