package bzperi

// Builder is the root of the fluent configurator DSL (spec.md §4.C,
// design notes §9 "fluent DSL"). A Configurator receives one Builder
// wrapping the tree's root node and declares services under it.
type Builder struct {
	root *Node
}

// newBuilder wraps a tree's root node for configurator use.
func newBuilder(root *Node) *Builder {
	return &Builder{root: root}
}

// Service starts a new GATT service under the root, mirroring
// paypal-gatt's AddCharacteristic chain (service.go) generalised to a
// D-Bus-backed tree node instead of a handle-table entry.
func (b *Builder) Service(uuid UUID, primary bool) (*ServiceBuilder, error) {
	slug, ok := uuid.Short16()
	if !ok {
		slug = uuid.String()
	}
	node, err := b.root.AddChild(slugify(slug))
	if err != nil {
		return nil, err
	}
	node.SetPublished(true)

	svc := &serviceState{uuid: uuid, primary: primary}
	iface := &Interface{
		Kind: IfaceGattService,
		Name: IfaceNameGattService,
		Properties: []Property{
			{Name: "UUID", Signature: "s", Flags: PropRead, Get: func() (Value, error) {
				return StringValue(svc.uuid.String()), nil
			}},
			{Name: "Primary", Signature: "b", Flags: PropRead, Get: func() (Value, error) {
				return BoolValue(svc.primary), nil
			}},
		},
	}
	if err := node.AddInterface(iface); err != nil {
		return nil, err
	}
	return &ServiceBuilder{parent: b, node: node, state: svc}, nil
}

// serviceState holds the mutable fields a GattService1's properties close
// over.
type serviceState struct {
	uuid    UUID
	primary bool
}

// ServiceBuilder is the scope returned by Builder.Service.
type ServiceBuilder struct {
	parent *Builder
	node   *Node
	state  *serviceState
}

// UUID returns the service's UUID.
func (s *ServiceBuilder) UUID() UUID { return s.state.uuid }

// Path returns the service's object path.
func (s *ServiceBuilder) Path() ObjectPath { return s.node.Path() }

// Characteristic starts a new characteristic under this service.
// Characteristic fails with ErrInvalidArgument if flags contains an
// unrecognised flag name (spec.md §4.A) or ErrDuplicatePath if the
// service already has a characteristic with the same UUID-derived slug.
func (s *ServiceBuilder) Characteristic(uuid UUID, flags ...CharFlag) (*CharacteristicBuilder, error) {
	return newCharacteristicBuilder(s, uuid, flags)
}

// End returns the parent Builder, for chained configurator code in the
// teacher's scoped-builder style.
func (s *ServiceBuilder) End() *Builder { return s.parent }

func slugify(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, byte(r))
		case r >= 'A' && r <= 'Z':
			out = append(out, byte(r-'A'+'a'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
