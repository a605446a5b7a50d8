package report

import (
	"strings"
	"testing"
)

func TestRequiredChildFailurePropagates(t *testing.T) {
	root := NewOperation("start-cluster")
	root.Add(Success("primary", "started"))

	secondaries := root.Add(Success("secondaries", ""))
	secondaries.Add(Success("secondary-2", "started"))
	secondaries.Add(Failure("secondary-3", "start timed out"))
	if secondaries.Succeeded {
		t.Fatalf("expected secondaries report to fail when a child failed")
	}

	// re-adding an already-failed aggregate must fail the root too
	root.Add(Failure("recheck", "x"))
	if root.Succeeded {
		t.Fatalf("expected root to fail")
	}

	if root.Child("primary") == nil || !root.Child("primary").Succeeded {
		t.Fatalf("primary result should be present and unaffected")
	}
}

func TestOptionalChildDoesNotPropagate(t *testing.T) {
	root := NewOperation("setup")
	root.AddOptional(Failure("save-config", "disk full"))
	if !root.Succeeded {
		t.Fatalf("optional child failure must not fail the parent")
	}
}

func TestAggregateFailureReflectsLate(t *testing.T) {
	root := NewOperation("start-cluster")
	secondaries := Success("secondaries", "")
	secondaries.Add(Failure("secondary-2", "unreachable"))
	root.Add(secondaries)
	if root.Succeeded {
		t.Fatalf("adding a failed aggregate must fail the root")
	}
}

func TestOperationIDAssigned(t *testing.T) {
	a := NewOperation("op")
	b := NewOperation("op")
	if a.OperationID == "" || a.OperationID == b.OperationID {
		t.Fatalf("expected distinct non-empty operation ids, got %q and %q", a.OperationID, b.OperationID)
	}
}

func TestStringRendersBreakdown(t *testing.T) {
	root := NewOperation("stop-cluster")
	root.Add(Failure("secondary-2", "still running after stop command"))
	out := root.String()
	if !strings.Contains(out, "[FAIL] secondary-2") {
		t.Fatalf("unexpected rendering:\n%s", out)
	}
	if !strings.Contains(out, "[FAIL] stop-cluster") {
		t.Fatalf("root failure missing from rendering:\n%s", out)
	}
}

func TestFind(t *testing.T) {
	root := NewOperation("converge")
	grp := root.Add(Success("group", ""))
	grp.Add(Success("add-secondary-2", "already a member"))
	if root.Find("add-secondary-2") == nil {
		t.Fatalf("expected to find nested report")
	}
	if root.Find("nope") != nil {
		t.Fatalf("expected nil for missing report")
	}
}
