package bzperi

import "testing"

func TestParseUUIDShortForm(t *testing.T) {
	u, err := ParseUUID("180F")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	want := "0000180F-0000-1000-8000-00805F9B34FB"
	if u.String() != want {
		t.Fatalf("String: got %q want %q", u.String(), want)
	}
	short, ok := u.Short16()
	if !ok || short != "180F" {
		t.Fatalf("Short16: got (%q, %v)", short, ok)
	}
	if !u.Is16Bit() {
		t.Fatal("Is16Bit: expected true")
	}
}

func TestParseUUIDFullForm(t *testing.T) {
	full := "09FC95C0-C111-11E3-9904-0002A5D5C51B"
	u, err := ParseUUID(full)
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if u.String() != full {
		t.Fatalf("String: got %q want %q", u.String(), full)
	}
	if u.Is16Bit() {
		t.Fatal("Is16Bit: expected false for custom 128-bit UUID")
	}
	if _, ok := u.Short16(); ok {
		t.Fatal("Short16: expected ok=false for custom UUID")
	}
}

func TestParseUUIDInvalid(t *testing.T) {
	for _, in := range []string{"", "zzzz", "180F0", "09FC95C0-C111-11E3-9904"} {
		if _, err := ParseUUID(in); err == nil {
			t.Fatalf("ParseUUID(%q): expected error", in)
		}
	}
}

func TestUUID16Helper(t *testing.T) {
	a := UUID16(0x2A19)
	b, err := ParseUUID("2A19")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("UUID16(0x2A19) != ParseUUID(\"2A19\"): %q vs %q", a, b)
	}
}

func TestMustParseUUIDPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid UUID")
		}
	}()
	MustParseUUID("not-a-uuid")
}

func TestUUIDRoundTripLowercaseInput(t *testing.T) {
	u, err := ParseUUID("09fc95c0-c111-11e3-9904-0002a5d5c51b")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if u.String() != "09FC95C0-C111-11E3-9904-0002A5D5C51B" {
		t.Fatalf("expected canonical uppercase form, got %q", u.String())
	}
}
