package report

import "fmt"

// ClosedRunError is returned for any event delivered after run-ended.
// The event is not applied; the frozen summary stays intact.
type ClosedRunError struct {
	RunID string
	Kind  Kind
	Test  string
}

func (e *ClosedRunError) Error() string {
	if e.Test == "" {
		return fmt.Sprintf("run %s already ended: rejected %s event", e.RunID, e.Kind)
	}
	return fmt.Sprintf("run %s already ended: rejected %s event for test %q", e.RunID, e.Kind, e.Test)
}

// TestEndedError is returned when a test that already ended is started or
// ended again. Ended tests are immutable.
type TestEndedError struct {
	Test   string
	Kind   Kind
	Status Status
}

func (e *TestEndedError) Error() string {
	return fmt.Sprintf("test %q already %s: rejected %s event", e.Test, e.Status, e.Kind)
}

// UnknownKindError is returned for an event whose kind the aggregator does
// not handle.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown event kind %d", int(e.Kind))
}
