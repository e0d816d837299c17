// Package apperrors defines application-level error types.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/reglet-dev/flowgate/internal/domain/permissions"
)

// Kind names used when errors cross into the script engine as JS errors.
const (
	KindPermissionDenied       = "PermissionDenied"
	KindCapabilityNotFound     = "CapabilityNotFound"
	KindBridgeInvocationFailed = "BridgeInvocationFailed"
	KindAlreadyInstalled       = "AlreadyInstalled"
	KindNotFound               = "NotFound"
	KindIOFailure              = "IoFailure"
	KindCommandFailed          = "CommandFailed"
)

// Kinded is implemented by errors that carry a stable kind name.
type Kinded interface {
	Kind() string
}

// ExitCoder is implemented by errors that carry a process-style exit code.
type ExitCoder interface {
	ExitCode() int
}

// KindOf returns the kind of the first Kinded error in the chain, or "Error".
func KindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "Error"
}

// ExitCodeOf returns the exit code carried by err, if any.
func ExitCodeOf(err error) (int, bool) {
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	return 0, false
}

// PermissionDeniedError indicates a call's required permissions are not
// covered by the run's grant for that function.
type PermissionDeniedError struct {
	Missing    *permissions.MissingError
	FunctionID string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s: %s", e.FunctionID, e.Missing.Reason)
}

func (e *PermissionDeniedError) Unwrap() error {
	return e.Missing
}

// Kind implements Kinded.
func (e *PermissionDeniedError) Kind() string { return KindPermissionDenied }

// NewPermissionDeniedError wraps a permission check failure. Errors that are
// not *permissions.MissingError are wrapped with a generic reason.
func NewPermissionDeniedError(functionID string, cause error) *PermissionDeniedError {
	var missing *permissions.MissingError
	if !errors.As(cause, &missing) {
		missing = &permissions.MissingError{Reason: cause.Error()}
	}
	return &PermissionDeniedError{FunctionID: functionID, Missing: missing}
}

// CapabilityNotFoundError indicates the requested function does not exist.
type CapabilityNotFoundError struct {
	FunctionID string
	Detail     string
}

func (e *CapabilityNotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("capability not found: %s: %s", e.FunctionID, e.Detail)
	}
	return fmt.Sprintf("capability not found: %s", e.FunctionID)
}

// Kind implements Kinded.
func (e *CapabilityNotFoundError) Kind() string { return KindCapabilityNotFound }

// NewCapabilityNotFoundError creates a new capability-not-found error.
func NewCapabilityNotFoundError(functionID, detail string) *CapabilityNotFoundError {
	return &CapabilityNotFoundError{FunctionID: functionID, Detail: detail}
}

// BridgeInvocationFailedError carries a failure thrown inside an external
// bundle.
type BridgeInvocationFailedError struct {
	Cause    error
	PluginID string
	Function string
}

func (e *BridgeInvocationFailedError) Error() string {
	return fmt.Sprintf("bridge invocation %s.%s failed: %v", e.PluginID, e.Function, e.Cause)
}

func (e *BridgeInvocationFailedError) Unwrap() error {
	return e.Cause
}

// Kind implements Kinded.
func (e *BridgeInvocationFailedError) Kind() string { return KindBridgeInvocationFailed }

// NewBridgeInvocationFailedError creates a new bridge failure.
func NewBridgeInvocationFailedError(pluginID, function string, cause error) *BridgeInvocationFailedError {
	return &BridgeInvocationFailedError{PluginID: pluginID, Function: function, Cause: cause}
}

// AlreadyInstalledError indicates an install of an id that is registered.
type AlreadyInstalledError struct {
	ID string
}

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf("plugin already installed: %s", e.ID)
}

// Kind implements Kinded.
func (e *AlreadyInstalledError) Kind() string { return KindAlreadyInstalled }

// NotFoundError indicates a plugin or workflow record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Kind implements Kinded.
func (e *NotFoundError) Kind() string { return KindNotFound }

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IOFailureError indicates a filesystem operation failed.
type IOFailureError struct {
	Cause error
	Op    string
	Path  string
}

func (e *IOFailureError) Error() string {
	return fmt.Sprintf("io failure: %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *IOFailureError) Unwrap() error {
	return e.Cause
}

// Kind implements Kinded.
func (e *IOFailureError) Kind() string { return KindIOFailure }

// NewIOFailureError creates a new io failure.
func NewIOFailureError(op, path string, cause error) *IOFailureError {
	return &IOFailureError{Op: op, Path: path, Cause: cause}
}

// CommandFailedError indicates a spawned process exited non-zero.
type CommandFailedError struct {
	Command string
	Stderr  string
	Code    int
}

func (e *CommandFailedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Code, e.Stderr)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
}

// ExitCode implements ExitCoder.
func (e *CommandFailedError) ExitCode() int { return e.Code }

// Kind implements Kinded.
func (e *CommandFailedError) Kind() string { return KindCommandFailed }

// ValidationError indicates request or manifest validation failed.
type ValidationError struct {
	Field   string   // Field that failed validation
	Message string   // Error message
	Details []string // Additional details
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s (%d issues)", e.Field, e.Message, len(e.Details))
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, details ...string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: details,
	}
}

// ConfigurationError indicates system config or setup issue.
type ConfigurationError struct {
	Cause   error
	Aspect  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Aspect, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Aspect, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(aspect, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Aspect:  aspect,
		Message: message,
		Cause:   cause,
	}
}
