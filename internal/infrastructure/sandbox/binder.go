package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/infrastructure/jsvm"
)

// binder installs the functions of a capability set into a runtime.
type binder struct {
	loop       *jsvm.Loop
	dispatcher *Dispatcher
	executor   *Executor
}

func (b *binder) bindAll(packages []capability.Package) error {
	for _, pkg := range packages {
		target, err := b.namespace(pkg.NamespacePath())
		if err != nil {
			return fmt.Errorf("package %s: %w", pkg.ID, err)
		}
		for _, fn := range pkg.Functions {
			if existing := target.Get(fn.Name); existing != nil && !goja.IsUndefined(existing) {
				return fmt.Errorf("package %s: %s.%s is already bound", pkg.ID, pkg.Namespace, fn.Name)
			}
			if err := target.Set(fn.Name, b.wrap(fn)); err != nil {
				return fmt.Errorf("failed to bind %s: %w", fn.ID, err)
			}
		}
	}
	return nil
}

// namespace returns the object at path under the global object, creating
// intermediate objects as needed.
func (b *binder) namespace(path []string) (*goja.Object, error) {
	vm := b.loop.Runtime()
	current := vm.GlobalObject()
	for _, segment := range path {
		existing := current.Get(segment)
		if existing != nil && !goja.IsUndefined(existing) && !goja.IsNull(existing) {
			obj, ok := existing.(*goja.Object)
			if !ok {
				return nil, fmt.Errorf("namespace segment %q is not an object", segment)
			}
			current = obj
			continue
		}
		obj := vm.NewObject()
		if err := current.Set(segment, obj); err != nil {
			return nil, err
		}
		current = obj
	}
	return current, nil
}

// wrap builds the JS function for fn. Async functions return a promise
// when an executor is configured, otherwise they run inline.
func (b *binder) wrap(fn capability.Function) func(goja.FunctionCall) goja.Value {
	async := fn.IsAsync() && b.executor != nil

	return func(call goja.FunctionCall) goja.Value {
		args, err := b.exportArgs(call.Arguments)
		if err != nil {
			b.loop.Throw(err)
		}

		resolved, err := b.dispatcher.Prepare(fn.ID)
		if err != nil {
			b.loop.Throw(err)
		}

		if async {
			return b.loop.Go(func(ctx context.Context) (any, error) {
				return b.executor.Do(ctx, func(ctx context.Context) (any, error) {
					return b.dispatcher.Call(ctx, resolved, args)
				})
			})
		}

		out, err := b.dispatcher.Call(b.loop.Context(), resolved, args)
		if err != nil {
			b.loop.Throw(err)
		}
		return b.loop.Runtime().ToValue(out)
	}
}

// exportArgs converts JS arguments to plain Go values through JSON so
// that nothing from the runtime escapes into host code.
func (b *binder) exportArgs(values []goja.Value) ([]any, error) {
	args := make([]any, len(values))
	for i, v := range values {
		if goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		if s, ok := v.Export().(string); ok {
			args[i] = s
			continue
		}
		encoded, err := b.loop.ToJSON(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if err := json.Unmarshal([]byte(encoded), &args[i]); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return args, nil
}
