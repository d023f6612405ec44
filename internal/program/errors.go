package program

import (
	"errors"
	"fmt"
)

// ErrMalformedProgram matches every *MalformedProgramError via errors.Is.
var ErrMalformedProgram = errors.New("malformed program")

// MalformedProgramError reports the record that could not be parsed.
type MalformedProgramError struct {
	// Index is the 0-based record index, or -1 when the failure is not tied
	// to a single record.
	Index int
	// Line is the 1-based source line, or 0 when unknown.
	Line   int
	Reason string
}

func (e *MalformedProgramError) Error() string {
	switch {
	case e.Index < 0 && e.Line > 0:
		return fmt.Sprintf("malformed program at line %d: %s", e.Line, e.Reason)
	case e.Index < 0:
		return fmt.Sprintf("malformed program: %s", e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("malformed program: record %d (line %d): %s", e.Index, e.Line, e.Reason)
	default:
		return fmt.Sprintf("malformed program: record %d: %s", e.Index, e.Reason)
	}
}

func (e *MalformedProgramError) Is(target error) bool {
	return target == ErrMalformedProgram
}

func malformed(index, line int, format string, args ...any) error {
	return &MalformedProgramError{Index: index, Line: line, Reason: fmt.Sprintf(format, args...)}
}
