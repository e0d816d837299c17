package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
	"github.com/reglet-dev/flowgate/internal/infrastructure/jsvm"
)

// ResultKey is the named result holding a function's return value.
const ResultKey = "result"

var positionalArgPattern = regexp.MustCompile(`^arg(\d+)$`)

// Call is one bridge request.
type Call struct {
	FuncName  string
	NamedArgs map[string]any
	// Order is the parameter order to use when the bundle does not declare
	// parameters for the function.
	Order []string
}

// Returns is one bridge response.
type Returns struct {
	NamedResults map[string]any
}

// Result returns the function's return value.
func (r Returns) Result() any {
	return r.NamedResults[ResultKey]
}

// Session evaluates one bundle in its own runtime and serves calls into
// it. The bundle is evaluated once, on first use. Calls are serialized.
type Session struct {
	pluginID string
	bundle   string

	mu     sync.Mutex
	loop   *jsvm.Loop
	closed bool
}

// NewSession creates a session for the bundle text of pluginID.
func NewSession(pluginID, bundle string) *Session {
	return &Session{pluginID: pluginID, bundle: bundle}
}

// PluginID returns the plugin package id served by the session.
func (s *Session) PluginID() string { return s.pluginID }

// Close releases the runtime.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		s.loop.Close()
	}
	s.closed = true
}

// Invoke calls a bundle function. Thrown values and rejected promises
// become *apperrors.BridgeInvocationFailedError; an unknown function is a
// *apperrors.CapabilityNotFoundError.
func (s *Session) Invoke(ctx context.Context, call Call) (Returns, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Returns{}, fmt.Errorf("bridge session for %s is closed", s.pluginID)
	}
	if err := s.load(ctx); err != nil {
		return Returns{}, err
	}
	defer s.flushConsole(call.FuncName)

	handler, params := s.lookup(call.FuncName)
	if handler == nil {
		return Returns{}, apperrors.NewCapabilityNotFoundError(call.FuncName,
			fmt.Sprintf("Unknown function %q in plugin %s", call.FuncName, s.pluginID))
	}

	args, err := s.arguments(call, params)
	if err != nil {
		return Returns{}, apperrors.NewBridgeInvocationFailedError(s.pluginID, call.FuncName, err)
	}

	v, err := s.loop.Call(ctx, handler, args...)
	if err == nil {
		v, err = s.loop.Await(ctx, v)
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return Returns{}, err
		}
		return Returns{}, apperrors.NewBridgeInvocationFailedError(s.pluginID, call.FuncName, err)
	}

	encoded, err := s.loop.ToJSON(v)
	if err != nil {
		return Returns{}, apperrors.NewBridgeInvocationFailedError(s.pluginID, call.FuncName, err)
	}
	var result any
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		return Returns{}, apperrors.NewBridgeInvocationFailedError(s.pluginID, call.FuncName, err)
	}

	return Returns{NamedResults: map[string]any{ResultKey: result}}, nil
}

func (s *Session) load(ctx context.Context) error {
	if s.loop != nil {
		return nil
	}

	loop, err := jsvm.New()
	if err != nil {
		return err
	}
	if _, err := loop.Run(ctx, s.pluginID+"/package.js", s.bundle); err != nil {
		loop.Close()
		return apperrors.NewBridgeInvocationFailedError(s.pluginID, "<load>", err)
	}
	s.loop = loop
	return nil
}

func (s *Session) flushConsole(funcName string) {
	if out := s.loop.Console().Flush(); out != "" {
		slog.Debug("bundle output", "plugin", s.pluginID, "function", funcName,
			"output", strings.TrimRight(out, "\n"))
	}
}

// lookup resolves a handler and its declared parameters.
func (s *Session) lookup(name string) (goja.Value, goja.Value) {
	global := s.loop.Runtime().GlobalObject()

	roots := []*goja.Object{
		objectPath(global, "Sapphillon", "Package", "functions"),
		objectPath(global, "Package", "functions"),
	}
	for _, functions := range roots {
		if functions == nil {
			continue
		}
		entry := objectPath(functions, name)
		if entry == nil {
			continue
		}
		if handler := entry.Get("handler"); isCallable(handler) {
			return handler, entry.Get("parameters")
		}
	}

	if fn := global.Get(name); isCallable(fn) {
		return fn, nil
	}
	return nil, nil
}

// arguments maps named arguments to positional ones: by the bundle's
// declared parameters, then by the caller's order, then by argN names.
// Otherwise the named arguments are passed as a single object.
func (s *Session) arguments(call Call, params goja.Value) ([]goja.Value, error) {
	if len(call.NamedArgs) == 0 {
		return nil, nil
	}

	order := declaredParameters(s.loop, params)
	if len(order) == 0 {
		order = call.Order
	}
	if len(order) == 0 {
		order = positionalOrder(call.NamedArgs)
	}

	if len(order) == 0 {
		v, err := s.toJS(call.NamedArgs)
		if err != nil {
			return nil, err
		}
		return []goja.Value{v}, nil
	}

	args := make([]goja.Value, len(order))
	for i, name := range order {
		value, ok := call.NamedArgs[name]
		if !ok {
			value, ok = call.NamedArgs["arg"+strconv.Itoa(i)]
		}
		if !ok {
			args[i] = goja.Undefined()
			continue
		}
		v, err := s.toJS(value)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		args[i] = v
	}
	return args, nil
}

func (s *Session) toJS(value any) (goja.Value, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return s.loop.FromJSON(string(raw))
}

type declaredParam struct {
	Idx  int    `json:"idx"`
	Name string `json:"name"`
}

func declaredParameters(loop *jsvm.Loop, params goja.Value) []string {
	if params == nil || goja.IsUndefined(params) || goja.IsNull(params) {
		return nil
	}
	encoded, err := loop.ToJSON(params)
	if err != nil {
		return nil
	}
	var decl []declaredParam
	if err := json.Unmarshal([]byte(encoded), &decl); err != nil {
		return nil
	}
	sort.SliceStable(decl, func(i, j int) bool { return decl[i].Idx < decl[j].Idx })

	names := make([]string, len(decl))
	for i, p := range decl {
		names[i] = p.Name
	}
	return names
}

// positionalOrder orders arg0..argN keys; any other key disables it.
func positionalOrder(named map[string]any) []string {
	type indexed struct {
		n    int
		name string
	}
	keys := make([]indexed, 0, len(named))
	for name := range named {
		m := positionalArgPattern.FindStringSubmatch(name)
		if m == nil {
			return nil
		}
		n, _ := strconv.Atoi(m[1])
		keys = append(keys, indexed{n: n, name: name})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].n < keys[j].n })

	order := make([]string, len(keys))
	for i, k := range keys {
		order[i] = k.name
	}
	return order
}

func objectPath(root *goja.Object, path ...string) *goja.Object {
	current := root
	for _, key := range path {
		v := current.Get(key)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil
		}
		obj, ok := v.(*goja.Object)
		if !ok {
			return nil
		}
		current = obj
	}
	return current
}

func isCallable(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}
