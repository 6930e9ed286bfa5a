package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBridgeForwardsInOrder(t *testing.T) {
	var got []Kind
	b := NewBridge(SinkFunc(func(ev Event) error {
		got = append(got, ev.Kind)
		if ev.At.IsZero() {
			t.Errorf("%s event has no timestamp", ev.Kind)
		}
		return nil
	}), nil)

	b.TestAdded("t", "")
	b.TestStarted("t")
	b.Assertion(Assertion{Test: "t", OK: true, Name: "a"})
	b.Assertion(Assertion{Test: "t", OK: true, Name: "a"})
	b.TestEnded("t", nil)
	b.RunEnded(Results{OK: true})

	want := []Kind{TestAdded, TestStarted, AssertionReported, AssertionReported, TestEnded, RunEnded}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("forwarded kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestBridgeDrivesAggregator(t *testing.T) {
	agg := NewAggregator(NewRun("r", epoch))
	b := NewBridge(agg, nil)

	b.TestAdded("root", "")
	b.TestStarted("root")
	b.TestAdded("root/sub", "root")
	b.TestStarted("root/sub")
	b.Assertion(Assertion{Test: "root/sub", OK: false, Name: "inner"})
	b.TestEnded("root/sub", &Results{OK: false})
	b.Assertion(Assertion{Test: "root", OK: false, Name: "sub"})
	b.TestEnded("root", &Results{OK: false})
	b.RunEnded(Results{OK: false})

	r := agg.Run()
	if r.Counts().Fail != 1 || r.Counts().Total != 1 {
		t.Errorf("counts = %+v, want one failure", r.Counts())
	}
	if !r.Closed() {
		t.Error("run not closed")
	}
}

func TestBridgeReportsViolations(t *testing.T) {
	var logBuf bytes.Buffer
	agg := NewAggregator(NewRun("r", epoch))
	b := NewBridge(agg, log.New(&logBuf, "", 0))

	var seen []error
	b.OnViolation = func(_ Event, err error) { seen = append(seen, err) }

	b.RunEnded(Results{OK: true})
	b.TestAdded("late", "")

	if len(seen) != 1 {
		t.Fatalf("violations seen = %d, want 1", len(seen))
	}
	var closedErr *ClosedRunError
	if !errors.As(seen[0], &closedErr) {
		t.Errorf("violation = %v, want *ClosedRunError", seen[0])
	}
	if !strings.Contains(logBuf.String(), "test-added") {
		t.Errorf("log missing event kind: %q", logBuf.String())
	}
}

func TestEventJSONUsesKindNames(t *testing.T) {
	ev := Event{Kind: AssertionReported, Test: "t", Assertion: &Assertion{Test: "t", Name: "x"}}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"assertion"`) {
		t.Errorf("kind not encoded by name: %s", data)
	}

	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Kind != AssertionReported {
		t.Errorf("kind = %v, want assertion", back.Kind)
	}

	if err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &back); err == nil {
		t.Error("expected error for unknown kind")
	}
}
