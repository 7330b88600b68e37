package bzperi

import (
	"errors"
	"testing"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	root, err := NewObjectPath("/com/bzperi")
	if err != nil {
		t.Fatalf("NewObjectPath: %v", err)
	}
	return NewTree(root)
}

func TestTreeAddChildAssignsPath(t *testing.T) {
	tree := newTestTree(t)
	child, err := tree.Root().AddChild("service0")
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if child.Path() != "/com/bzperi/service0" {
		t.Fatalf("Path: got %q", child.Path())
	}
	if got, ok := tree.Node(child.Path()); !ok || got != child {
		t.Fatal("Node: lookup by path failed")
	}
}

func TestTreeAddChildDuplicatePath(t *testing.T) {
	tree := newTestTree(t)
	if _, err := tree.Root().AddChild("service0"); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if _, err := tree.Root().AddChild("service0"); !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("AddChild duplicate: got %v, want ErrDuplicatePath", err)
	}
}

func TestNodeAddInterfaceRejectsDuplicateKind(t *testing.T) {
	tree := newTestTree(t)
	node, _ := tree.Root().AddChild("service0")
	iface := &Interface{Kind: IfaceGattService, Name: IfaceNameGattService}
	if err := node.AddInterface(iface); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	if err := node.AddInterface(iface); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("AddInterface duplicate kind: got %v, want ErrAlreadyExists", err)
	}
}

func TestTreeFindPropertyAndCallMethod(t *testing.T) {
	tree := newTestTree(t)
	node, _ := tree.Root().AddChild("service0")
	called := false
	iface := &Interface{
		Kind: IfaceGattService,
		Name: IfaceNameGattService,
		Properties: []Property{
			{Name: "UUID", Signature: "s", Flags: PropRead, Get: func() (Value, error) {
				return StringValue("180F"), nil
			}},
		},
		Methods: []Method{
			{Name: "Ping", Handler: func(inv *Invocation) {
				called = true
				inv.Reply()
			}},
		},
	}
	if err := node.AddInterface(iface); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}

	prop, err := tree.FindProperty(node.Path(), IfaceNameGattService, "UUID")
	if err != nil {
		t.Fatalf("FindProperty: %v", err)
	}
	v, err := prop.Get()
	if err != nil || v.ToNative() != "180F" {
		t.Fatalf("Get: got %#v, err %v", v, err)
	}

	ok, err := tree.CallMethod(node.Path(), IfaceNameGattService, "Ping", NewInvocation(node.Path(), IfaceNameGattService, "Ping", nil, func(...Value) {}, func(error) {}))
	if err != nil || !ok || !called {
		t.Fatalf("CallMethod: ok=%v err=%v called=%v", ok, err, called)
	}
}

func TestTreeGetManagedObjectsSkipsUnpublished(t *testing.T) {
	tree := newTestTree(t)
	published, _ := tree.Root().AddChild("service0")
	published.AddInterface(&Interface{
		Kind: IfaceGattService,
		Name: IfaceNameGattService,
		Properties: []Property{
			{Name: "UUID", Get: func() (Value, error) { return StringValue("180F"), nil }},
		},
	})
	hidden, _ := published.AddChild("hidden0")
	hidden.SetPublished(false)
	hidden.AddInterface(&Interface{Kind: IfaceGattCharacteristic, Name: IfaceNameGattCharacteristic})

	objects, err := tree.GetManagedObjects()
	if err != nil {
		t.Fatalf("GetManagedObjects: %v", err)
	}
	if _, ok := objects[published.Path()]; !ok {
		t.Fatalf("GetManagedObjects: missing published node %q", published.Path())
	}
	if _, ok := objects[hidden.Path()]; ok {
		t.Fatalf("GetManagedObjects: unpublished node %q should be elided", hidden.Path())
	}
	if _, ok := tree.Node(hidden.Path()); !ok {
		t.Fatal("unpublished node should still be reachable by path")
	}
}

func TestTreeUpdateHandlerFor(t *testing.T) {
	tree := newTestTree(t)
	svc, _ := tree.Root().AddChild("service0")
	char, _ := svc.AddChild("char0")
	iface := &Interface{Kind: IfaceGattCharacteristic, Name: IfaceNameGattCharacteristic}
	char.AddInterface(iface)

	if _, _, ok := tree.UpdateHandlerFor(char.Path()); ok {
		t.Fatal("expected no update handler before one is registered")
	}

	iface.Update = func(ctx UpdateContext) error { return nil }
	handler, ifaceName, ok := tree.UpdateHandlerFor(char.Path())
	if !ok || handler == nil || ifaceName != IfaceNameGattCharacteristic {
		t.Fatalf("UpdateHandlerFor: got (%v, %q, %v)", handler, ifaceName, ok)
	}
}
