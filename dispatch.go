package bzperi

import "github.com/godbus/dbus/v5"

// This file adapts the tree's (path, interface, method) dispatch
// contract (node.go) onto the concrete Go method signatures godbus's
// reflection-based Export/ExportMethodTable requires. Each handler type
// below corresponds to exactly one D-Bus interface shape from spec.md
// §6.1; CallMethod's handlers run synchronously, so each wrapper can
// capture its result directly instead of going through a callback queue.

func dbusErrorOf(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	if he, ok := err.(*handlerError); ok {
		return dbus.NewError(he.name, []interface{}{he.msg})
	}
	return dbus.NewError(bluezErrorName(err), []interface{}{err.Error()})
}

func bluezErrorName(err error) string {
	switch err {
	case ErrInvalidArgument:
		return "org.bluez.Error.InvalidArguments"
	case ErrNotFound:
		return "org.bluez.Error.DoesNotExist"
	case ErrNotSupported:
		return "org.bluez.Error.NotSupported"
	case ErrAlreadyExists:
		return "org.bluez.Error.AlreadyExists"
	case ErrPermissionDenied:
		return "org.bluez.Error.NotPermitted"
	case ErrInProgress:
		return "org.bluez.Error.InProgress"
	case ErrUnknownInterface, ErrUnknownProperty:
		return "org.freedesktop.DBus.Error.UnknownProperty"
	default:
		return "org.bluez.Error.Failed"
	}
}

// propertiesHandler implements org.freedesktop.DBus.Properties for one
// node path, delegating Get/Set/GetAll to the tree.
type propertiesHandler struct {
	tree *Tree
	path ObjectPath
	pub  *Publisher
}

func newPropertiesHandler(tree *Tree, path ObjectPath, pub *Publisher) *propertiesHandler {
	return &propertiesHandler{tree: tree, path: path, pub: pub}
}

func (h *propertiesHandler) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	prop, err := h.tree.FindProperty(h.path, iface, name)
	if err != nil {
		return dbus.Variant{}, dbusErrorOf(err)
	}
	if prop.Get == nil {
		return dbus.Variant{}, dbusErrorOf(ErrUnknownProperty)
	}
	v, err := prop.Get()
	if err != nil {
		return dbus.Variant{}, dbusErrorOf(err)
	}
	return v.ToVariant(), nil
}

func (h *propertiesHandler) Set(iface, name string, value dbus.Variant) *dbus.Error {
	prop, err := h.tree.FindProperty(h.path, iface, name)
	if err != nil {
		return dbusErrorOf(err)
	}
	if prop.Set == nil {
		return dbusErrorOf(NewHandlerError("org.bluez.Error.NotPermitted", "property is read-only"))
	}
	v, err := FromVariant(value)
	if err != nil {
		return dbusErrorOf(err)
	}
	if err := prop.Set(v); err != nil {
		return dbusErrorOf(err)
	}
	if prop.Flags&PropEmitsChange != 0 && h.pub != nil {
		_ = h.pub.EmitPropertiesChanged(h.path, iface, map[string]Value{name: v})
	}
	return nil
}

func (h *propertiesHandler) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	values, err := h.tree.AllProperties(h.path, iface)
	if err != nil {
		return nil, dbusErrorOf(err)
	}
	return ValuesToVariantMap(values), nil
}

// introspectHandler implements org.freedesktop.DBus.Introspectable.
type introspectHandler struct {
	tree *Tree
	path ObjectPath
}

func newIntrospectHandler(tree *Tree, path ObjectPath) *introspectHandler {
	return &introspectHandler{tree: tree, path: path}
}

func (h *introspectHandler) Introspect() (string, *dbus.Error) {
	xmlStr, err := h.tree.GenerateIntrospectionXML(h.path)
	if err != nil {
		return "", dbusErrorOf(err)
	}
	return xmlStr, nil
}

// objectManagerHandler implements org.freedesktop.DBus.ObjectManager on
// the root node only (spec.md §6.1).
type objectManagerHandler struct {
	tree *Tree
}

func (h *objectManagerHandler) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	objects, err := h.tree.GetManagedObjects()
	if err != nil {
		return nil, dbusErrorOf(err)
	}
	out := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(objects))
	for path, ifaces := range objects {
		converted := make(map[string]map[string]dbus.Variant, len(ifaces))
		for ifaceName, props := range ifaces {
			converted[ifaceName] = ValuesToVariantMap(props)
		}
		out[dbus.ObjectPath(path)] = converted
	}
	return out, nil
}

// gattValueHandler implements the ReadValue/WriteValue/StartNotify/
// StopNotify shape shared by GattCharacteristic1 and GattDescriptor1, and
// the single-method Release shape of LEAdvertisement1, by delegating
// through tree.CallMethod so the same handler closures written in
// characteristic.go/descriptor.go/advertisement.go run regardless of
// transport.
type gattValueHandler struct {
	tree  *Tree
	path  ObjectPath
	iface string
}

func (h *gattValueHandler) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	optValues, err := DecodeOptions(options)
	if err != nil {
		return nil, dbusErrorOf(err)
	}
	args := []Value{DictValue(optValues)}
	var result []byte
	var callErr error
	inv := NewInvocation(h.path, h.iface, "ReadValue", args,
		func(results ...Value) {
			if len(results) > 0 {
				result = decodeBytesArg(results[0])
			}
		},
		func(e error) { callErr = e },
	)
	ok, err := h.tree.CallMethod(h.path, h.iface, "ReadValue", inv)
	if err != nil {
		return nil, dbusErrorOf(err)
	}
	if !ok {
		return nil, dbusErrorOf(ErrUnknownInterface)
	}
	if callErr != nil {
		return nil, dbusErrorOf(callErr)
	}
	return result, nil
}

func (h *gattValueHandler) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	optValues, err := DecodeOptions(options)
	if err != nil {
		return dbusErrorOf(err)
	}
	args := []Value{BytesValue(value), DictValue(optValues)}
	var callErr error
	inv := NewInvocation(h.path, h.iface, "WriteValue", args,
		func(results ...Value) {},
		func(e error) { callErr = e },
	)
	ok, err := h.tree.CallMethod(h.path, h.iface, "WriteValue", inv)
	if err != nil {
		return dbusErrorOf(err)
	}
	if !ok {
		return dbusErrorOf(ErrUnknownInterface)
	}
	return dbusErrorOf(callErr)
}

func (h *gattValueHandler) StartNotify() *dbus.Error {
	return h.callNoArgs("StartNotify")
}

func (h *gattValueHandler) StopNotify() *dbus.Error {
	return h.callNoArgs("StopNotify")
}

func (h *gattValueHandler) Release() *dbus.Error {
	return h.callNoArgs("Release")
}

func (h *gattValueHandler) callNoArgs(method string) *dbus.Error {
	var callErr error
	inv := NewInvocation(h.path, h.iface, method, nil,
		func(results ...Value) {},
		func(e error) { callErr = e },
	)
	ok, err := h.tree.CallMethod(h.path, h.iface, method, inv)
	if err != nil {
		return dbusErrorOf(err)
	}
	if !ok {
		return dbusErrorOf(ErrUnknownInterface)
	}
	return dbusErrorOf(callErr)
}

// newInterfaceHandler picks the concrete handler shape for iface.Kind,
// or nil when the interface declares no methods worth a D-Bus export
// (GattService1 exposes only properties).
func newInterfaceHandler(tree *Tree, path ObjectPath, iface *Interface) interface{} {
	switch iface.Kind {
	case IfaceObjectManager:
		return &objectManagerHandler{tree: tree}
	case IfaceGattCharacteristic, IfaceGattDescriptor, IfaceAdvertisement:
		if len(iface.Methods) == 0 {
			return nil
		}
		return &gattValueHandler{tree: tree, path: path, iface: iface.Name}
	default:
		return nil
	}
}
