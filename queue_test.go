package bzperi

import "testing"

func TestUpdateQueueFIFOOrder(t *testing.T) {
	q := NewUpdateQueue()
	q.PushFront(UpdateEntry{Path: "/a", Interface: "iface.A"})
	q.PushFront(UpdateEntry{Path: "/b", Interface: "iface.B"})
	q.PushFront(UpdateEntry{Path: "/c", Interface: "iface.C"})

	first, _, ok := q.PopBack()
	if !ok || first.Path != "/a" {
		t.Fatalf("expected /a first, got %+v ok=%v", first, ok)
	}
	second, _, ok := q.PopBack()
	if !ok || second.Path != "/b" {
		t.Fatalf("expected /b second, got %+v ok=%v", second, ok)
	}
	third, _, ok := q.PopBack()
	if !ok || third.Path != "/c" {
		t.Fatalf("expected /c third, got %+v ok=%v", third, ok)
	}
	if _, _, ok := q.PopBack(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestUpdateQueueEncode(t *testing.T) {
	e := UpdateEntry{Path: "/com/bzperi/service0/char0", Interface: IfaceNameGattCharacteristic}
	want := "/com/bzperi/service0/char0|" + IfaceNameGattCharacteristic
	if got := e.Encode(); got != want {
		t.Fatalf("Encode: got %q want %q", got, want)
	}
}

func TestUpdateQueueSizeAndClear(t *testing.T) {
	q := NewUpdateQueue()
	if !q.IsEmpty() || q.Size() != 0 {
		t.Fatal("expected empty queue initially")
	}
	q.PushFront(UpdateEntry{Path: "/a"})
	q.PushFront(UpdateEntry{Path: "/b"})
	if q.Size() != 2 {
		t.Fatalf("Size: got %d want 2", q.Size())
	}
	if peeked, ok := q.PeekBack(); !ok || peeked.Path != "/a" {
		t.Fatalf("PeekBack: got %+v ok=%v", peeked, ok)
	}
	if q.Size() != 2 {
		t.Fatal("PeekBack must not remove the entry")
	}
	q.Clear()
	if !q.IsEmpty() {
		t.Fatal("expected empty queue after Clear")
	}
}
