package report

import "strings"

// A parent test usually emits its own assertion restating whether a
// subtest passed, after the subtest's failing assertions were already
// reported. Counting that restatement would report one defect twice.
//
// The check only works when the harness ends the subtest before the
// parent's restatement arrives. If the restatement comes first the
// subtest has not ended yet, nothing matches, and the assertion is
// counted: the suppressor fails open.

// SubtestName qualifies a subtest label under its parent test.
func SubtestName(parent, label string) string {
	if parent == "" {
		return label
	}
	return parent + "/" + label
}

// restatesFailedSubtest reports whether a failing assertion named label on
// owner restates a subtest that already ended as failed. The label is
// tried as a full test name first, then qualified under owner. The matched
// test must belong to owner: either it records owner as its parent, or it
// records no parent and its name is qualified under owner.
func (r *Run) restatesFailedSubtest(owner, label string) bool {
	if label == "" {
		return false
	}
	candidates := []string{label}
	if q := SubtestName(owner, label); q != label {
		candidates = append(candidates, q)
	}
	for _, name := range candidates {
		t, ok := r.byName[name]
		if !ok || name == owner || t.Status != StatusFailed {
			continue
		}
		if belongsTo(t, owner) {
			return true
		}
	}
	return false
}

func belongsTo(t *Test, owner string) bool {
	if t.Parent != "" {
		return t.Parent == owner
	}
	if owner == "" {
		return true
	}
	return strings.HasPrefix(t.Name, owner+"/")
}
