package bzperi

import "testing"

func TestBluezErrorNameMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrInvalidArgument, "org.bluez.Error.InvalidArguments"},
		{ErrNotFound, "org.bluez.Error.DoesNotExist"},
		{ErrNotSupported, "org.bluez.Error.NotSupported"},
		{ErrAlreadyExists, "org.bluez.Error.AlreadyExists"},
		{ErrPermissionDenied, "org.bluez.Error.NotPermitted"},
		{ErrInProgress, "org.bluez.Error.InProgress"},
		{ErrUnknownInterface, "org.freedesktop.DBus.Error.UnknownProperty"},
		{ErrUnknownProperty, "org.freedesktop.DBus.Error.UnknownProperty"},
		{ErrFailed, "org.bluez.Error.Failed"},
	}
	for _, c := range cases {
		if got := bluezErrorName(c.err); got != c.want {
			t.Errorf("bluezErrorName(%v): got %q want %q", c.err, got, c.want)
		}
	}
}

func TestDbusErrorOfNilIsNil(t *testing.T) {
	if dbusErrorOf(nil) != nil {
		t.Fatal("dbusErrorOf(nil) should be nil")
	}
}

func TestDbusErrorOfHandlerErrorUsesItsOwnName(t *testing.T) {
	err := NewHandlerError("org.bluez.Error.NotPermitted", "no dice")
	dbusErr := dbusErrorOf(err)
	if dbusErr == nil || dbusErr.Name != "org.bluez.Error.NotPermitted" {
		t.Fatalf("dbusErrorOf(handlerError): got %#v", dbusErr)
	}
	if len(dbusErr.Body) != 1 || dbusErr.Body[0] != "no dice" {
		t.Fatalf("dbusErrorOf(handlerError) body: got %#v", dbusErr.Body)
	}
}

func TestDbusErrorOfSentinelUsesMappedName(t *testing.T) {
	dbusErr := dbusErrorOf(ErrNotFound)
	if dbusErr == nil || dbusErr.Name != "org.bluez.Error.DoesNotExist" {
		t.Fatalf("dbusErrorOf(ErrNotFound): got %#v", dbusErr)
	}
}

func TestNewInterfaceHandlerPicksShapeByKind(t *testing.T) {
	tree := newTestTree(t)
	node, _ := tree.Root().AddChild("service0")

	svcIface := &Interface{Kind: IfaceGattService, Name: IfaceNameGattService}
	if h := newInterfaceHandler(tree, node.Path(), svcIface); h != nil {
		t.Fatalf("GattService1 interface should get no handler, got %#v", h)
	}

	charIface := &Interface{Kind: IfaceGattCharacteristic, Name: IfaceNameGattCharacteristic,
		Methods: []Method{{Name: "ReadValue"}}}
	if h := newInterfaceHandler(tree, node.Path(), charIface); h == nil {
		t.Fatal("GattCharacteristic1 interface with methods should get a handler")
	} else if _, ok := h.(*gattValueHandler); !ok {
		t.Fatalf("expected *gattValueHandler, got %T", h)
	}

	omIface := &Interface{Kind: IfaceObjectManager, Name: IfaceNameObjectManager}
	if h := newInterfaceHandler(tree, node.Path(), omIface); h == nil {
		t.Fatal("ObjectManager interface should get a handler")
	} else if _, ok := h.(*objectManagerHandler); !ok {
		t.Fatalf("expected *objectManagerHandler, got %T", h)
	}
}

func TestPropertiesHandlerGetSetRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	node, _ := tree.Root().AddChild("service0")
	var stored Value
	iface := &Interface{
		Kind: IfaceGattService,
		Name: IfaceNameGattService,
		Properties: []Property{
			{Name: "UUID", Flags: PropRead | PropWrite,
				Get: func() (Value, error) { return stored, nil },
				Set: func(v Value) error { stored = v; return nil }},
		},
	}
	node.AddInterface(iface)

	h := newPropertiesHandler(tree, node.Path(), nil)
	if dbusErr := h.Set(IfaceNameGattService, "UUID", StringValue("180F").ToVariant()); dbusErr != nil {
		t.Fatalf("Set: %v", dbusErr)
	}
	v, dbusErr := h.Get(IfaceNameGattService, "UUID")
	if dbusErr != nil {
		t.Fatalf("Get: %v", dbusErr)
	}
	if v.Value() != "180F" {
		t.Fatalf("Get: got %#v", v)
	}
}

func TestPropertiesHandlerSetReadOnlyFails(t *testing.T) {
	tree := newTestTree(t)
	node, _ := tree.Root().AddChild("service0")
	iface := &Interface{
		Kind: IfaceGattService,
		Name: IfaceNameGattService,
		Properties: []Property{
			{Name: "UUID", Flags: PropRead, Get: func() (Value, error) { return StringValue("180F"), nil }},
		},
	}
	node.AddInterface(iface)

	h := newPropertiesHandler(tree, node.Path(), nil)
	if dbusErr := h.Set(IfaceNameGattService, "UUID", StringValue("x").ToVariant()); dbusErr == nil {
		t.Fatal("Set on a read-only property should fail")
	}
}
