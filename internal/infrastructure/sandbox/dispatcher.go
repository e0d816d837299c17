package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/domain/capability"
	"github.com/reglet-dev/flowgate/internal/infrastructure/bridge"
)

// Dispatcher is the single path every host call takes: resolve the
// function, authorize it against the run's grants, then invoke it.
type Dispatcher struct {
	set  *capability.Set
	rc   capability.RunContext
	pool *bridge.Pool
}

// NewDispatcher creates a dispatcher over a resolved capability set.
func NewDispatcher(set *capability.Set, rc capability.RunContext, pool *bridge.Pool) *Dispatcher {
	return &Dispatcher{set: set, rc: rc, pool: pool}
}

// Invoke resolves, authorizes and calls functionID with args.
func (d *Dispatcher) Invoke(ctx context.Context, functionID string, args []any) (any, error) {
	fn, err := d.Prepare(functionID)
	if err != nil {
		return nil, err
	}
	return d.Call(ctx, fn, args)
}

// Prepare resolves functionID and checks the function's declared
// requirement against the run's grants.
func (d *Dispatcher) Prepare(functionID string) (capability.Function, error) {
	fn, ok := d.set.Lookup(functionID)
	if !ok {
		return capability.Function{}, apperrors.NewCapabilityNotFoundError(functionID, "")
	}
	if err := d.rc.Authorize(fn.ID, fn.Required); err != nil {
		slog.Debug("host call denied", "run_id", d.rc.RunID(), "function_id", fn.ID, "error", err)
		return capability.Function{}, err
	}
	return fn, nil
}

// Call invokes an already authorized function.
func (d *Dispatcher) Call(ctx context.Context, fn capability.Function, args []any) (any, error) {
	slog.Debug("host call", "run_id", d.rc.RunID(), "function_id", fn.ID, "args", len(args))

	switch inv := fn.Invocation.(type) {
	case capability.Native:
		strArgs, err := stringArgs(args)
		if err != nil {
			return nil, err
		}
		return inv.Callback(ctx, d.rc, strArgs)

	case capability.External:
		session, err := d.pool.Session(inv.Descriptor.PluginID)
		if err != nil {
			return nil, apperrors.NewCapabilityNotFoundError(fn.ID, err.Error())
		}
		out, err := session.Invoke(ctx, bridge.Call{
			FuncName:  inv.Descriptor.FuncName,
			NamedArgs: namedArgs(inv.Descriptor.ParamNames, args),
			Order:     inv.Descriptor.ParamNames,
		})
		if err != nil {
			return nil, err
		}
		return out.Result(), nil

	default:
		return nil, fmt.Errorf("function %s has no invocation", fn.ID)
	}
}

// stringArgs renders arguments for native callbacks: strings verbatim,
// null as empty, everything else as JSON.
func stringArgs(args []any) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			out[i] = string(raw)
		}
	}
	return out, nil
}

// namedArgs keys positional arguments by declared parameter name, falling
// back to arg0..argN.
func namedArgs(names []string, args []any) map[string]any {
	named := make(map[string]any, len(args))
	for i, a := range args {
		key := fmt.Sprintf("arg%d", i)
		if i < len(names) && names[i] != "" {
			key = names[i]
		}
		named[key] = a
	}
	return named
}
