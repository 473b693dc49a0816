package evm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTrace is returned when there are no instructions to reconstruct from.
	ErrEmptyTrace = errors.New("empty trace")

	// ErrStructuralCorruption is returned when the depth sequence unwinds the
	// frame stack below the root frame.
	ErrStructuralCorruption = errors.New("structural corruption")

	// ErrDecode is wrapped by every *DecodeError.
	ErrDecode = errors.New("decode error")
)

// DecodeError describes a trace record that could not be turned into an Instruction.
type DecodeError struct {
	// Index is the record's position in the trace, or -1 for a single record.
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("decode error: record %d: field %s: %v", e.Index, e.Field, e.Err)
	}

	return fmt.Sprintf("decode error: field %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
