package jsvm

import (
	"fmt"

	"github.com/dop251/goja"
)

// ToJSON serializes v with the runtime's JSON.stringify.
func (l *Loop) ToJSON(v goja.Value) (string, error) {
	stringify, err := l.jsonFunc("stringify")
	if err != nil {
		return "", err
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return "", fmt.Errorf("JSON.stringify failed: %w", err)
	}
	if goja.IsUndefined(out) {
		return "null", nil
	}
	return out.String(), nil
}

// FromJSON parses s with the runtime's JSON.parse.
func (l *Loop) FromJSON(s string) (goja.Value, error) {
	parse, err := l.jsonFunc("parse")
	if err != nil {
		return nil, err
	}
	v, err := parse(goja.Undefined(), l.vm.ToValue(s))
	if err != nil {
		return nil, fmt.Errorf("JSON.parse failed: %w", err)
	}
	return v, nil
}

func (l *Loop) jsonFunc(name string) (goja.Callable, error) {
	jsonObj := l.vm.Get("JSON").ToObject(l.vm)
	fn, ok := goja.AssertFunction(jsonObj.Get(name))
	if !ok {
		return nil, fmt.Errorf("JSON.%s is not available", name)
	}
	return fn, nil
}
