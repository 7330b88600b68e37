package bzperi

import (
	"fmt"
	"regexp"
	"strings"
)

// bluetoothBaseUUIDSuffix is the fixed tail of the Bluetooth SIG base UUID,
// onto which 16- and 32-bit UUIDs are canonicalised. See spec.md §3.1.
const bluetoothBaseUUIDSuffix = "-0000-1000-8000-00805F9B34FB"

var (
	uuid16RE  = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
	uuid32RE  = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)
	uuid128RE = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
)

// UUID is a 16-, 32- or 128-bit Bluetooth GATT UUID, always held and
// rendered in its canonical 128-bit uppercase form (spec.md §3.1/§4.A).
type UUID struct {
	canonical string // "XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX", uppercase
}

// ParseUUID accepts "XXXX" (16-bit), "XXXXXXXX" (32-bit), or the full
// 36-character hyphenated form. Anything else fails with ErrInvalidUUID.
func ParseUUID(s string) (UUID, error) {
	switch {
	case uuid16RE.MatchString(s):
		return UUID{canonical: strings.ToUpper("0000" + s + bluetoothBaseUUIDSuffix)}, nil
	case uuid32RE.MatchString(s):
		return UUID{canonical: strings.ToUpper(s + bluetoothBaseUUIDSuffix)}, nil
	case uuid128RE.MatchString(s):
		return UUID{canonical: strings.ToUpper(s)}, nil
	default:
		return UUID{}, fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
}

// MustParseUUID is ParseUUID, panicking on error. Intended for use in
// configurator literals where the UUID is a compile-time constant.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UUID16 builds the canonical UUID for a 16-bit SIG-assigned value, e.g.
// UUID16(0x180F) for the Battery Service.
func UUID16(v uint16) UUID {
	return UUID{canonical: fmt.Sprintf("0000%04X%s", v, bluetoothBaseUUIDSuffix)}
}

// String renders the UUID uppercase, without braces, as BlueZ expects on
// the wire (spec.md §3.1).
func (u UUID) String() string { return u.canonical }

// IsZero reports whether u is the zero value (no UUID parsed).
func (u UUID) IsZero() bool { return u.canonical == "" }

// Equal reports whether two UUIDs are the same canonical value.
func (u UUID) Equal(o UUID) bool { return u.canonical == o.canonical }

// Is16Bit reports whether u is one of the SIG-assigned UUIDs built on the
// Bluetooth base UUID, i.e. whether it can be represented in the 16-bit
// advertising form used by the adapter controller's AD payload budget
// (spec.md §3.2, §4.F advertisement payload policy).
func (u UUID) Is16Bit() bool {
	return strings.HasSuffix(u.canonical, bluetoothBaseUUIDSuffix) && u.canonical[:4] == "0000"
}

// Short16 returns the 4 hex digit form and true if Is16Bit, else "", false.
func (u UUID) Short16() (string, bool) {
	if !u.Is16Bit() {
		return "", false
	}
	return u.canonical[4:8], true
}
