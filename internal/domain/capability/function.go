// Package capability describes the callable capabilities a workflow may
// invoke, unifying compiled-in (internal) providers and installed
// (external) bundles behind one model.
package capability

import (
	"context"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// RunContext is the per-run call context handed to native callbacks.
type RunContext interface {
	// RunID identifies the run for logging.
	RunID() string
	// WorkflowID identifies the workflow being executed.
	WorkflowID() string
	// Authorize checks required against the run's grant for functionID.
	Authorize(functionID string, required permissions.Set) error
}

// NativeFunc is the implementation of an internal capability. It must
// call rc.Authorize with its own requirement before any privileged effect.
type NativeFunc func(ctx context.Context, rc RunContext, args []string) (string, error)

// Invocation describes how a function is actually executed. It is
// implemented only by Native and External.
type Invocation interface {
	isInvocation()
}

// Native invokes a compiled-in callback.
type Native struct {
	Callback NativeFunc
	// Async marks calls that may run off the interpreter goroutine
	// (process spawn, network fetch).
	Async bool
}

func (Native) isInvocation() {}

// BridgeDescriptor locates a function inside an external bundle.
type BridgeDescriptor struct {
	PluginID   string
	FuncName   string
	ParamNames []string
}

// External invokes a function inside an installed bundle via the bridge.
type External struct {
	Descriptor BridgeDescriptor
}

func (External) isInvocation() {}

// Function is one named, permission-gated operation.
type Function struct {
	ID          string          `json:"function_id" yaml:"function_id"`
	Name        string          `json:"name" yaml:"name"`
	DisplayName string          `json:"display_name" yaml:"display_name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Required    permissions.Set `json:"permissions" yaml:"permissions"`
	ArgumentDoc string          `json:"argument_doc,omitempty" yaml:"argument_doc,omitempty"`
	ReturnDoc   string          `json:"return_doc,omitempty" yaml:"return_doc,omitempty"`
	Invocation  Invocation      `json:"-" yaml:"-"`
}

// IsNative reports whether the function has a native callback.
func (f Function) IsNative() bool {
	_, ok := f.Invocation.(Native)
	return ok
}

// IsAsync reports whether calls may be scheduled off the interpreter.
// External calls are always async-capable since bundles may await.
func (f Function) IsAsync() bool {
	switch inv := f.Invocation.(type) {
	case Native:
		return inv.Async
	case External:
		return true
	default:
		return false
	}
}
