package resource

import (
	"errors"
	"testing"
)

func TestScope_ReleasesOnClose(t *testing.T) {
	table := NewTable()
	scope := table.NewScope()

	scope.Insert(TypeHostRef, "a")
	scope.Insert(TypeHostRef, "b")
	if scope.Count() != 2 || table.Len() != 2 {
		t.Fatalf("Count = %d, Len = %d", scope.Count(), table.Len())
	}

	scope.Close()
	if table.Len() != 0 {
		t.Fatalf("Expected all handles released, %d left", table.Len())
	}

	scope.Close() // idempotent
}

func TestScope_Escape(t *testing.T) {
	table := NewTable()
	scope := table.NewScope()

	keep := scope.Insert(TypeHostRef, "keep")
	scope.Insert(TypeHostRef, "drop")

	if !scope.Escape(keep) {
		t.Fatal("Escape should find tracked handle")
	}
	if scope.Escape(keep) {
		t.Fatal("second Escape should report untracked")
	}
	scope.Close()

	if _, ok := table.Get(keep); !ok {
		t.Fatal("escaped handle should survive the scope")
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d, want 1", table.Len())
	}
}

func TestScope_ErrorPath(t *testing.T) {
	table := NewTable()
	var order []string

	call := func() (err error) {
		scope := table.NewScope()
		defer scope.Close()

		scope.Insert(TypeHostRef, "arg")
		scope.Defer(func() { order = append(order, "first") })
		scope.Defer(func() { order = append(order, "second") })
		return errors.New("native failure")
	}

	if err := call(); err == nil {
		t.Fatal("expected error")
	}
	if table.Len() != 0 {
		t.Fatalf("handles leaked on error path: %d", table.Len())
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("deferred order = %v, want [second first]", order)
	}
}
