package bzperi

import "fmt"

// CharFlag is one of the access-policy flags from spec.md §3.1; the named
// constants are the only values add_interface/characteristic construction
// accepts.
type CharFlag string

const (
	FlagRead                     CharFlag = "read"
	FlagWrite                    CharFlag = "write"
	FlagWriteWithoutResponse     CharFlag = "write-without-response"
	FlagNotify                   CharFlag = "notify"
	FlagIndicate                 CharFlag = "indicate"
	FlagAuthenticatedSignedWrite CharFlag = "authenticated-signed-writes"
	FlagEncryptRead              CharFlag = "encrypt-read"
	FlagEncryptWrite             CharFlag = "encrypt-write"
	FlagEncryptAuthenticatedRead  CharFlag = "encrypt-authenticated-read"
	FlagEncryptAuthenticatedWrite CharFlag = "encrypt-authenticated-write"
	FlagSecureRead                CharFlag = "secure-read"
	FlagSecureWrite                CharFlag = "secure-write"
)

var validCharFlags = map[CharFlag]bool{
	FlagRead: true, FlagWrite: true, FlagWriteWithoutResponse: true,
	FlagNotify: true, FlagIndicate: true, FlagAuthenticatedSignedWrite: true,
	FlagEncryptRead: true, FlagEncryptWrite: true,
	FlagEncryptAuthenticatedRead: true, FlagEncryptAuthenticatedWrite: true,
	FlagSecureRead: true, FlagSecureWrite: true,
}

func validateFlags(flags []CharFlag) error {
	for _, f := range flags {
		if !validCharFlags[f] {
			return fmt.Errorf("%w: unknown flag %q", ErrInvalidArgument, f)
		}
	}
	return nil
}

func hasFlag(flags []CharFlag, target CharFlag) bool {
	for _, f := range flags {
		if f == target {
			return true
		}
	}
	return false
}

// ReadRequest carries the decoded options a remote GATT client passed to
// ReadValue (spec.md §6.1).
type ReadRequest struct {
	Path    ObjectPath
	Options map[string]Value
}

// WriteRequest carries the decoded options a remote GATT client passed to
// WriteValue.
type WriteRequest struct {
	Path    ObjectPath
	Options map[string]Value
}

// ReadHandler answers a ReadValue call with the characteristic's current
// bytes, or a typed error handed back to the remote caller as a D-Bus
// error (spec.md §7, "Handler errors").
type ReadHandler func(req ReadRequest) ([]byte, error)

// WriteHandler accepts a WriteValue call's payload.
type WriteHandler func(req WriteRequest, data []byte) error

// UpdateContext is passed to an UpdateHandler so it can push the new
// value out as a PropertiesChanged signal (spec.md §4.E: "on_updated_value
// ... is expected to call emit_properties_changed").
type UpdateContext struct {
	Path ObjectPath
	Emit func(values map[string]Value) error
}

// UpdateHandler reacts to a push_update notification for this
// characteristic or descriptor.
type UpdateHandler func(ctx UpdateContext) error

// charState holds the mutable fields a characteristic's handlers and
// property getters close over; it is the Go analogue of paypal-gatt's
// Characteristic struct (characteristic.go), generalised from raw ATT
// handles to D-Bus handler slots.
type charState struct {
	uuid        UUID
	servicePath ObjectPath
	flags       []CharFlag
	onRead      ReadHandler
	onWrite     WriteHandler
	onUpdated   UpdateHandler
	notifying   bool
}

func flagStrings(flags []CharFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

// CharacteristicBuilder is the scope returned by ServiceBuilder.Characteristic.
type CharacteristicBuilder struct {
	parent *ServiceBuilder
	node   *Node
	state  *charState
}

func newCharacteristicBuilder(parent *ServiceBuilder, uuid UUID, flags []CharFlag) (*CharacteristicBuilder, error) {
	if err := validateFlags(flags); err != nil {
		return nil, err
	}
	slug, ok := uuid.Short16()
	if !ok {
		slug = uuid.String()
	}
	node, err := parent.node.AddChild(slugify(slug))
	if err != nil {
		return nil, err
	}
	node.SetPublished(true)

	st := &charState{uuid: uuid, servicePath: parent.Path(), flags: flags}
	cb := &CharacteristicBuilder{parent: parent, node: node, state: st}

	iface := &Interface{
		Kind: IfaceGattCharacteristic,
		Name: IfaceNameGattCharacteristic,
		Properties: []Property{
			{Name: "UUID", Signature: "s", Flags: PropRead, Get: func() (Value, error) {
				return StringValue(st.uuid.String()), nil
			}},
			{Name: "Service", Signature: "o", Flags: PropRead, Get: func() (Value, error) {
				return ObjectPathValue(st.servicePath), nil
			}},
			{Name: "Flags", Signature: "as", Flags: PropRead, Get: func() (Value, error) {
				vals := make([]Value, len(st.flags))
				for i, f := range st.flags {
					vals[i] = StringValue(string(f))
				}
				return ArrayValue(vals), nil
			}},
		},
		Methods: []Method{
			{Name: "ReadValue", InSig: []string{"a{sv}"}, OutSig: "ay", Handler: cb.handleReadValue},
			{Name: "WriteValue", InSig: []string{"ay", "a{sv}"}, OutSig: "", Handler: cb.handleWriteValue},
			{Name: "StartNotify", Handler: cb.handleStartNotify},
			{Name: "StopNotify", Handler: cb.handleStopNotify},
		},
	}
	if err := node.AddInterface(iface); err != nil {
		return nil, err
	}
	return cb, nil
}

func (c *CharacteristicBuilder) handleReadValue(inv *Invocation) {
	if c.state.onRead == nil {
		inv.Fail(NewHandlerError("org.bluez.Error.NotSupported", "characteristic is not readable"))
		return
	}
	options, err := decodeInvocationOptions(inv.Args)
	if err != nil {
		inv.Fail(err)
		return
	}
	data, err := c.state.onRead(ReadRequest{Path: inv.Path, Options: options})
	if err != nil {
		inv.Fail(err)
		return
	}
	inv.Reply(BytesValue(data))
}

func (c *CharacteristicBuilder) handleWriteValue(inv *Invocation) {
	if c.state.onWrite == nil {
		inv.Fail(NewHandlerError("org.bluez.Error.NotSupported", "characteristic is not writable"))
		return
	}
	if len(inv.Args) < 1 {
		inv.Fail(ErrInvalidArgument)
		return
	}
	data := decodeBytesArg(inv.Args[0])
	var options map[string]Value
	if len(inv.Args) > 1 {
		var err error
		options, err = decodeInvocationOptions(inv.Args[1:])
		if err != nil {
			inv.Fail(err)
			return
		}
	}
	if err := c.state.onWrite(WriteRequest{Path: inv.Path, Options: options}, data); err != nil {
		inv.Fail(err)
		return
	}
	inv.Reply()
}

func (c *CharacteristicBuilder) handleStartNotify(inv *Invocation) {
	if !hasFlag(c.state.flags, FlagNotify) && !hasFlag(c.state.flags, FlagIndicate) {
		inv.Fail(NewHandlerError("org.bluez.Error.NotSupported", "characteristic does not support notifications"))
		return
	}
	c.state.notifying = true
	inv.Reply()
}

func (c *CharacteristicBuilder) handleStopNotify(inv *Invocation) {
	c.state.notifying = false
	inv.Reply()
}

func decodeInvocationOptions(args []Value) (map[string]Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]Value)
	for _, a := range args {
		if a.Kind() != KindDict {
			continue
		}
		for k, v := range a.dictVal {
			out[k] = v
		}
	}
	return out, nil
}

func decodeBytesArg(v Value) []byte {
	if v.Kind() == KindBytes {
		return v.bytesVal
	}
	return nil
}

// UUID returns the characteristic's UUID.
func (c *CharacteristicBuilder) UUID() UUID { return c.state.uuid }

// Path returns the characteristic's object path.
func (c *CharacteristicBuilder) Path() ObjectPath { return c.node.Path() }

// Notifying reports whether a remote client has called StartNotify and not
// yet called StopNotify.
func (c *CharacteristicBuilder) Notifying() bool { return c.state.notifying }

// OnRead installs h as the characteristic's read handler (spec.md §3.1
// "on_read"), mirroring paypal-gatt's HandleRead (characteristic.go).
// OnRead must be called before the server is started.
func (c *CharacteristicBuilder) OnRead(h ReadHandler) *CharacteristicBuilder {
	c.state.onRead = h
	return c
}

// OnWrite installs h as the characteristic's write handler.
func (c *CharacteristicBuilder) OnWrite(h WriteHandler) *CharacteristicBuilder {
	c.state.onWrite = h
	return c
}

// OnUpdatedValue installs h as the handler the dispatcher (component E)
// invokes when this characteristic's path is popped from the update
// queue. Required (even as a no-op) for any characteristic declaring
// notify or indicate (spec.md §3.2).
func (c *CharacteristicBuilder) OnUpdatedValue(h UpdateHandler) *CharacteristicBuilder {
	c.state.onUpdated = h
	if iface, ok := c.node.Interface(IfaceGattCharacteristic); ok {
		iface.Update = h
	}
	return c
}

func (c *CharacteristicBuilder) updateHandler() (UpdateHandler, bool) {
	return c.state.onUpdated, c.state.onUpdated != nil
}

// Descriptor starts a new descriptor under this characteristic.
func (c *CharacteristicBuilder) Descriptor(uuid UUID, flags ...CharFlag) (*DescriptorBuilder, error) {
	return newDescriptorBuilder(c, uuid, flags)
}

// End returns the parent ServiceBuilder.
func (c *CharacteristicBuilder) End() *ServiceBuilder { return c.parent }
