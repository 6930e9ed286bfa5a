package harness

import (
	"fmt"
	"strings"
)

// ProgramError reports a test program that could not be started.
type ProgramError struct {
	Program string
	Command []string
	Err     error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("program %s (%s): %v", e.Program, strings.Join(e.Command, " "), e.Err)
}

func (e *ProgramError) Unwrap() error { return e.Err }
