// Package values contains domain value objects that encapsulate
// primitive types with validation.
package values

import (
	"fmt"

	"github.com/google/uuid"
)

// ResultID uniquely identifies a workflow result record.
type ResultID struct {
	value uuid.UUID
}

// NewResultID creates a new random result ID
func NewResultID() ResultID {
	return ResultID{value: uuid.New()}
}

// ParseResultID parses a string into a ResultID
func ParseResultID(s string) (ResultID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ResultID{}, fmt.Errorf("invalid result ID: %w", err)
	}
	return ResultID{value: id}, nil
}

// String returns the string representation
func (r ResultID) String() string {
	return r.value.String()
}

// IsZero returns true if this is the zero value
func (r ResultID) IsZero() bool {
	return r.value == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler
func (r ResultID) MarshalText() ([]byte, error) {
	return []byte(r.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *ResultID) UnmarshalText(data []byte) error {
	id, err := ParseResultID(string(data))
	if err != nil {
		return err
	}
	*r = id
	return nil
}

// RunID identifies one sandbox run. Runs are ephemeral; the id only
// correlates log lines and bundle sessions.
type RunID struct {
	value uuid.UUID
}

// NewRunID creates a new random run ID
func NewRunID() RunID {
	return RunID{value: uuid.New()}
}

// String returns the string representation
func (r RunID) String() string {
	return r.value.String()
}
