package bzperi

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestSelectAdapterPreferredByPath(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0", Address: "AA:BB:CC:DD:EE:01"},
		{Path: "/org/bluez/hci1", Address: "AA:BB:CC:DD:EE:02"},
	}
	got, ok := selectAdapter(candidates, "/org/bluez/hci1")
	if !ok || got.Path != "/org/bluez/hci1" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestSelectAdapterPreferredByAddress(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0", Address: "AA:BB:CC:DD:EE:01"},
		{Path: "/org/bluez/hci1", Address: "AA:BB:CC:DD:EE:02"},
	}
	got, ok := selectAdapter(candidates, "AA:BB:CC:DD:EE:02")
	if !ok || got.Path != "/org/bluez/hci1" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestSelectAdapterPreferredBySuffix(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0"},
		{Path: "/org/bluez/hci1"},
	}
	got, ok := selectAdapter(candidates, "hci1")
	if !ok || got.Path != "/org/bluez/hci1" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestSelectAdapterFallsBackToFirstPowered(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0", Powered: false},
		{Path: "/org/bluez/hci1", Powered: true},
		{Path: "/org/bluez/hci2", Powered: true},
	}
	got, ok := selectAdapter(candidates, "")
	if !ok || got.Path != "/org/bluez/hci1" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestSelectAdapterFallsBackToFirstEnumerated(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0", Powered: false},
		{Path: "/org/bluez/hci1", Powered: false},
	}
	got, ok := selectAdapter(candidates, "")
	if !ok || got.Path != "/org/bluez/hci0" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestSelectAdapterPreferredMissesFallsThroughToPowered(t *testing.T) {
	candidates := []AdapterInfo{
		{Path: "/org/bluez/hci0", Powered: true},
	}
	got, ok := selectAdapter(candidates, "nonexistent")
	if !ok || got.Path != "/org/bluez/hci0" {
		t.Fatalf("selectAdapter: got %+v ok=%v", got, ok)
	}
}

func TestAdapterInfoFromPropsDecodesKnownFields(t *testing.T) {
	props := map[string]dbus.Variant{
		"Address":      dbus.MakeVariant("AA:BB:CC:DD:EE:01"),
		"Name":         dbus.MakeVariant("hci0"),
		"Alias":        dbus.MakeVariant("my-peripheral"),
		"Powered":      dbus.MakeVariant(true),
		"Discoverable": dbus.MakeVariant(false),
		"Pairable":     dbus.MakeVariant(true),
		"Discovering":  dbus.MakeVariant(false),
		"UUIDs":        dbus.MakeVariant([]string{"0000180f-0000-1000-8000-00805f9b34fb"}),
	}
	info := adapterInfoFromProps("/org/bluez/hci0", props)
	if info.Path != "/org/bluez/hci0" || info.Address != "AA:BB:CC:DD:EE:01" ||
		info.Name != "hci0" || info.Alias != "my-peripheral" ||
		!info.Powered || info.Discoverable || !info.Pairable || info.Discovering {
		t.Fatalf("adapterInfoFromProps: got %+v", info)
	}
	if len(info.UUIDs) != 1 {
		t.Fatalf("adapterInfoFromProps UUIDs: got %v", info.UUIDs)
	}
}

func TestAdapterInfoFromPropsIgnoresMissingFields(t *testing.T) {
	info := adapterInfoFromProps("/org/bluez/hci0", map[string]dbus.Variant{})
	if info.Path != "/org/bluez/hci0" || info.Address != "" || info.Powered {
		t.Fatalf("adapterInfoFromProps: expected zero values, got %+v", info)
	}
}

func TestSetConnectableAlwaysUnsupported(t *testing.T) {
	a := &AdapterController{devices: make(map[ObjectPath]*DeviceInfo)}
	if err := a.SetConnectable(true); err != ErrNotSupported {
		t.Fatalf("SetConnectable: got %v, want ErrNotSupported", err)
	}
}

func TestAdapterControllerOnConnectionChangeInvoked(t *testing.T) {
	a := &AdapterController{devices: make(map[ObjectPath]*DeviceInfo)}
	var gotConnected bool
	var gotPath ObjectPath
	a.OnConnectionChange(func(connected bool, path ObjectPath) {
		gotConnected = connected
		gotPath = path
	})
	a.setDeviceConnected("/org/bluez/hci0/dev_AA", true)
	if !gotConnected || gotPath != "/org/bluez/hci0/dev_AA" {
		t.Fatalf("OnConnectionChange: connected=%v path=%q", gotConnected, gotPath)
	}
}
