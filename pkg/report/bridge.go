package report

import (
	"fmt"
	"io"
	"log"
	"time"
)

// Kind identifies a normalized harness/parser signal.
type Kind int

const (
	// TestAdded: a new test program is tracked.
	TestAdded Kind = iota + 1
	// TestStarted: execution of a test has begun.
	TestStarted
	// AssertionReported: one assertion outcome.
	AssertionReported
	// TestEnded: a test finished; Results may be nil.
	TestEnded
	// RunEnded: no more tests will be added.
	RunEnded
)

var kindNames = map[Kind]string{ //nolint:gochecknoglobals // read-only lookup table
	TestAdded:         "test-added",
	TestStarted:       "test-started",
	AssertionReported: "assertion",
	TestEnded:         "test-ended",
	RunEnded:          "run-ended",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown event kind %q", b)
	}
	*k = parsed
	return nil
}

// Event is the normalized record forwarded from the bridge to a Sink.
type Event struct {
	Kind      Kind       `json:"kind"`
	Test      string     `json:"test,omitempty"`
	Parent    string     `json:"parent,omitempty"`
	Assertion *Assertion `json:"assertion,omitempty"`
	Results   *Results   `json:"results,omitempty"`
	At        time.Time  `json:"at"`
}

// Sink consumes normalized events in delivery order.
type Sink interface {
	Apply(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Apply calls f(ev).
func (f SinkFunc) Apply(ev Event) error { return f(ev) }

// Bridge turns harness and parser signals into Events and forwards each
// one to its sink in the order received. It does not filter, batch or
// reorder. Callers must not invoke it from more than one goroutine at a
// time; the harness serializes its signals.
type Bridge struct {
	sink   Sink
	now    func() time.Time
	logger *log.Logger

	// OnViolation, when set, receives every error the sink returns.
	OnViolation func(ev Event, err error)
}

// NewBridge creates a bridge forwarding to sink. A nil logger discards.
func NewBridge(sink Sink, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bridge{sink: sink, now: time.Now, logger: logger}
}

// TestAdded forwards a test-added signal.
func (b *Bridge) TestAdded(name, parent string) {
	b.forward(Event{Kind: TestAdded, Test: name, Parent: parent})
}

// TestStarted forwards a test-started signal.
func (b *Bridge) TestStarted(name string) {
	b.forward(Event{Kind: TestStarted, Test: name})
}

// Assertion forwards one assertion reported against a.Test.
func (b *Bridge) Assertion(a Assertion) {
	b.forward(Event{Kind: AssertionReported, Test: a.Test, Assertion: &a})
}

// TestEnded forwards a test-ended signal. res may be nil.
func (b *Bridge) TestEnded(name string, res *Results) {
	b.forward(Event{Kind: TestEnded, Test: name, Results: res})
}

// RunEnded forwards the final aggregate results.
func (b *Bridge) RunEnded(res Results) {
	b.forward(Event{Kind: RunEnded, Results: &res})
}

func (b *Bridge) forward(ev Event) {
	ev.At = b.now()
	if err := b.sink.Apply(ev); err != nil {
		b.logger.Printf("report: %s event for %q not applied: %v", ev.Kind, ev.Test, err)
		if b.OnViolation != nil {
			b.OnViolation(ev, err)
		}
	}
}
