package bzperi

import (
	"errors"
	"testing"
)

func TestRegistryApplyAllRunsInOrder(t *testing.T) {
	reg := NewRegistry()
	var order []int
	reg.Register(func(b *Builder) error { order = append(order, 1); return nil })
	reg.Register(func(b *Builder) error { order = append(order, 2); return nil })

	root, _ := NewObjectPath("/com/bzperi")
	tree := NewTree(root)
	if err := reg.ApplyAll(tree.Root()); err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("ApplyAll order: got %v", order)
	}
}

func TestRegistryApplyAllStopsOnFirstError(t *testing.T) {
	reg := NewRegistry()
	sentinel := errors.New("boom")
	calledSecond := false
	reg.Register(func(b *Builder) error { return sentinel })
	reg.Register(func(b *Builder) error { calledSecond = true; return nil })

	root, _ := NewObjectPath("/com/bzperi")
	tree := NewTree(root)
	err := reg.ApplyAll(tree.Root())
	if !errors.Is(err, sentinel) {
		t.Fatalf("ApplyAll: got %v, want sentinel", err)
	}
	if calledSecond {
		t.Fatal("ApplyAll: second configurator should not run after first fails")
	}
}

func TestRegistryCountAndClear(t *testing.T) {
	reg := NewRegistry()
	reg.Register(func(b *Builder) error { return nil })
	reg.Register(func(b *Builder) error { return nil })
	if reg.Count() != 2 {
		t.Fatalf("Count: got %d want 2", reg.Count())
	}
	reg.Clear()
	if reg.Count() != 0 {
		t.Fatalf("Count after Clear: got %d want 0", reg.Count())
	}
}

func TestRegistryApplyAllSnapshotsUnderLock(t *testing.T) {
	reg := NewRegistry()
	reg.Register(func(b *Builder) error {
		reg.Register(func(b *Builder) error { return nil })
		return nil
	})
	root, _ := NewObjectPath("/com/bzperi")
	tree := NewTree(root)
	if err := reg.ApplyAll(tree.Root()); err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if reg.Count() != 2 {
		t.Fatalf("Count after re-entrant Register: got %d want 2", reg.Count())
	}
}
