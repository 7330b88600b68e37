package bzperi

import "testing"

func TestFitServiceUUIDsDropsCustom128Bit(t *testing.T) {
	custom, err := ParseUUID("12345678-1234-5678-1234-567812345678")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	all := []UUID{UUID16(0x180F), custom, UUID16(0x180D)}
	got := fitServiceUUIDs(all, "", false)
	if len(got) != 2 || !got[0].Equal(UUID16(0x180F)) || !got[1].Equal(UUID16(0x180D)) {
		t.Fatalf("fitServiceUUIDs: got %v, want only the two 16-bit UUIDs", got)
	}
}

func TestFitServiceUUIDsRespectsBudgetExhaustion(t *testing.T) {
	var all []UUID
	for i := uint16(0); i < 20; i++ {
		all = append(all, UUID16(0x1800+i))
	}
	got := fitServiceUUIDs(all, "", false)
	// budget = 31 - 3 (flags) = 28; header 2 + 2 bytes/uuid -> floor((28-2)/2) = 13
	if len(got) != 13 {
		t.Fatalf("fitServiceUUIDs: got %d UUIDs, want 13", len(got))
	}
	for i, u := range got {
		if !u.Equal(UUID16(0x1800 + uint16(i))) {
			t.Fatalf("fitServiceUUIDs: out of order at %d: %v", i, u)
		}
	}
}

func TestFitServiceUUIDsShrinksWithNameAndTxPower(t *testing.T) {
	var all []UUID
	for i := uint16(0); i < 20; i++ {
		all = append(all, UUID16(0x1800+i))
	}
	withoutExtras := fitServiceUUIDs(all, "", false)
	withExtras := fitServiceUUIDs(all, "MyPeripheralDevice", true)
	if len(withExtras) >= len(withoutExtras) {
		t.Fatalf("fitServiceUUIDs: expected fewer UUIDs with name+tx-power, got %d vs %d", len(withExtras), len(withoutExtras))
	}
}

func TestFitServiceUUIDsNoShortUUIDsReturnsNil(t *testing.T) {
	custom, _ := ParseUUID("12345678-1234-5678-1234-567812345678")
	got := fitServiceUUIDs([]UUID{custom}, "", false)
	if got != nil {
		t.Fatalf("fitServiceUUIDs: got %v, want nil", got)
	}
}

func TestFitServiceUUIDsOversizedNameYieldsNoUUIDs(t *testing.T) {
	longName := ""
	for i := 0; i < 40; i++ {
		longName += "x"
	}
	got := fitServiceUUIDs([]UUID{UUID16(0x180F)}, longName, true)
	if len(got) != 0 {
		t.Fatalf("fitServiceUUIDs: got %v, want none when the name alone exceeds budget", got)
	}
}

func newTestAdvertisement(t *testing.T) (*Tree, *Advertisement) {
	t.Helper()
	root, err := NewObjectPath("/com/bzperi")
	if err != nil {
		t.Fatalf("NewObjectPath: %v", err)
	}
	tree := NewTree(root)
	adv, err := NewAdvertisement(tree.Root(), []UUID{UUID16(0x180F)}, "MyDevice", true)
	if err != nil {
		t.Fatalf("NewAdvertisement: %v", err)
	}
	return tree, adv
}

func TestNewAdvertisementExposesProperties(t *testing.T) {
	_, adv := newTestAdvertisement(t)
	if adv.Path() != "/com/bzperi/advertisement0" {
		t.Fatalf("Path: got %q", adv.Path())
	}
	iface, ok := adv.node.Interface(IfaceAdvertisement)
	if !ok {
		t.Fatal("expected LEAdvertisement1 interface")
	}
	typeProp, _ := iface.findProperty("Type")
	v, err := typeProp.Get()
	if err != nil || v.ToNative() != string(AdvertisementPeripheral) {
		t.Fatalf("Type property: got %#v err %v", v, err)
	}
	includesProp, _ := iface.findProperty("Includes")
	v, err = includesProp.Get()
	if err != nil {
		t.Fatalf("Includes property: %v", err)
	}
	includes, ok := v.ToNative().([]interface{})
	if !ok || len(includes) != 2 {
		t.Fatalf("Includes property: got %#v", v.ToNative())
	}
}

func TestAdvertisementReleaseSetsReleased(t *testing.T) {
	_, adv := newTestAdvertisement(t)
	if adv.Released() {
		t.Fatal("expected Released() false before Release is called")
	}
	iface, _ := adv.node.Interface(IfaceAdvertisement)
	releaseMethod, ok := iface.findMethod("Release")
	if !ok {
		t.Fatal("expected Release method")
	}
	replied := false
	releaseMethod.Handler(NewInvocation(adv.Path(), IfaceNameLEAdvertisement, "Release", nil,
		func(results ...Value) { replied = true },
		func(err error) { t.Fatalf("Release failed: %v", err) },
	))
	if !replied || !adv.Released() {
		t.Fatalf("Release: replied=%v released=%v", replied, adv.Released())
	}
}
