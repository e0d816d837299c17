package jsvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	apperrors "github.com/reglet-dev/flowgate/internal/application/errors"
)

// ScriptError is an uncaught JS exception that did not originate from Go.
type ScriptError struct {
	Name    string
	Message string
	Stack   string
}

func (e *ScriptError) Error() string {
	if e.Name == "" || e.Name == "Error" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Kind implements apperrors.Kinded.
func (e *ScriptError) Kind() string {
	if e.Name == "" {
		return "Error"
	}
	return e.Name
}

// NewError builds a JS Error object carrying err. The error's kind is
// exposed as the "name" property so scripts can branch on it, and the Go
// error survives a throw back out of the runtime.
func (l *Loop) NewError(err error) *goja.Object {
	obj := l.vm.NewGoError(err)
	_ = obj.Set("name", apperrors.KindOf(err))
	return obj
}

// Throw raises err as a JS exception from inside a Go function bound to
// the runtime.
func (l *Loop) Throw(err error) {
	panic(l.NewError(err))
}

// convertError maps an error returned by goja to a Go error.
func (l *Loop) convertError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		l.vm.ClearInterrupt()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if v, ok := interrupted.Value().(error); ok {
			return v
		}
		return context.Canceled
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return l.valueError(exc.Value())
	}
	return err
}

// valueError converts a thrown or rejected JS value to a Go error. Errors
// created by NewError unwrap to the Go error they carry.
func (l *Loop) valueError(v goja.Value) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return &ScriptError{Message: "undefined"}
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return &ScriptError{Message: v.String()}
	}

	if inner := obj.Get("value"); inner != nil {
		if goErr, ok := inner.Export().(error); ok {
			return goErr
		}
	}

	se := &ScriptError{Message: v.String()}
	if obj.ClassName() == "Error" {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			se.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			se.Message = msg.String()
		}
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			se.Stack = stack.String()
		}
	}
	return se
}
