package bzperi

// descState holds the mutable fields behind a GattDescriptor1 node,
// mirroring charState but without notify support (descriptors have no
// StartNotify/StopNotify in the BlueZ contract).
type descState struct {
	uuid     UUID
	charPath ObjectPath
	flags    []CharFlag
	onRead   ReadHandler
	onWrite  WriteHandler
	onUpdated UpdateHandler
}

// DescriptorBuilder is the scope returned by CharacteristicBuilder.Descriptor.
type DescriptorBuilder struct {
	parent *CharacteristicBuilder
	node   *Node
	state  *descState
}

func newDescriptorBuilder(parent *CharacteristicBuilder, uuid UUID, flags []CharFlag) (*DescriptorBuilder, error) {
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

	st := &descState{uuid: uuid, charPath: parent.Path(), flags: flags}
	db := &DescriptorBuilder{parent: parent, node: node, state: st}

	iface := &Interface{
		Kind: IfaceGattDescriptor,
		Name: IfaceNameGattDescriptor,
		Properties: []Property{
			{Name: "UUID", Signature: "s", Flags: PropRead, Get: func() (Value, error) {
				return StringValue(st.uuid.String()), nil
			}},
			{Name: "Characteristic", Signature: "o", Flags: PropRead, Get: func() (Value, error) {
				return ObjectPathValue(st.charPath), nil
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
			{Name: "ReadValue", InSig: []string{"a{sv}"}, OutSig: "ay", Handler: db.handleReadValue},
			{Name: "WriteValue", InSig: []string{"ay", "a{sv}"}, OutSig: "", Handler: db.handleWriteValue},
		},
	}
	if err := node.AddInterface(iface); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *DescriptorBuilder) handleReadValue(inv *Invocation) {
	if d.state.onRead == nil {
		inv.Fail(NewHandlerError("org.bluez.Error.NotSupported", "descriptor is not readable"))
		return
	}
	options, err := decodeInvocationOptions(inv.Args)
	if err != nil {
		inv.Fail(err)
		return
	}
	data, err := d.state.onRead(ReadRequest{Path: inv.Path, Options: options})
	if err != nil {
		inv.Fail(err)
		return
	}
	inv.Reply(BytesValue(data))
}

func (d *DescriptorBuilder) handleWriteValue(inv *Invocation) {
	if d.state.onWrite == nil {
		inv.Fail(NewHandlerError("org.bluez.Error.NotSupported", "descriptor is not writable"))
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
	if err := d.state.onWrite(WriteRequest{Path: inv.Path, Options: options}, data); err != nil {
		inv.Fail(err)
		return
	}
	inv.Reply()
}

// UUID returns the descriptor's UUID.
func (d *DescriptorBuilder) UUID() UUID { return d.state.uuid }

// Path returns the descriptor's object path.
func (d *DescriptorBuilder) Path() ObjectPath { return d.node.Path() }

// OnRead installs d's read handler.
func (d *DescriptorBuilder) OnRead(h ReadHandler) *DescriptorBuilder {
	d.state.onRead = h
	return d
}

// OnWrite installs d's write handler.
func (d *DescriptorBuilder) OnWrite(h WriteHandler) *DescriptorBuilder {
	d.state.onWrite = h
	return d
}

// OnUpdatedValue installs the handler the dispatcher invokes for this
// descriptor's path.
func (d *DescriptorBuilder) OnUpdatedValue(h UpdateHandler) *DescriptorBuilder {
	d.state.onUpdated = h
	if iface, ok := d.node.Interface(IfaceGattDescriptor); ok {
		iface.Update = h
	}
	return d
}

func (d *DescriptorBuilder) updateHandler() (UpdateHandler, bool) {
	return d.state.onUpdated, d.state.onUpdated != nil
}

// End returns the parent CharacteristicBuilder.
func (d *DescriptorBuilder) End() *CharacteristicBuilder { return d.parent }
