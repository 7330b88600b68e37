package bzperi

import (
	"sort"
	"sync"
)

// InterfaceKind tags which of the five polymorphic interface variants an
// Interface value represents (spec.md §3.1).
type InterfaceKind int

const (
	IfaceGattService InterfaceKind = iota
	IfaceGattCharacteristic
	IfaceGattDescriptor
	IfaceObjectManager
	IfaceAdvertisement
)

// D-Bus interface names, bit-exact per spec.md §6.1.
const (
	IfaceNameObjectManager      = "org.freedesktop.DBus.ObjectManager"
	IfaceNameProperties         = "org.freedesktop.DBus.Properties"
	IfaceNameIntrospectable     = "org.freedesktop.DBus.Introspectable"
	IfaceNameGattService        = "org.bluez.GattService1"
	IfaceNameGattCharacteristic = "org.bluez.GattCharacteristic1"
	IfaceNameGattDescriptor     = "org.bluez.GattDescriptor1"
	IfaceNameLEAdvertisement    = "org.bluez.LEAdvertisement1"
)

// PropertyFlags is a bitmask of the access modes from spec.md §3.1.
type PropertyFlags uint8

const (
	PropRead PropertyFlags = 1 << iota
	PropWrite
	PropEmitsChange
)

// Property describes one D-Bus property exposed by an Interface.
// Get/Set are optional; a read-only property has Set == nil, and a
// write-only (or purely computed) one may have Get == nil.
type Property struct {
	Name      string
	Signature string
	Flags     PropertyFlags
	Get       func() (Value, error)
	Set       func(Value) error
}

// Invocation is the handle a Method.Handler uses to reply to or fail an
// inbound D-Bus method call (spec.md §3.1 "Method").
type Invocation struct {
	Path      ObjectPath
	Interface string
	Method    string
	Args      []Value

	reply func(results ...Value)
	fail  func(err error)
}

// Reply completes the invocation successfully.
func (inv *Invocation) Reply(results ...Value) {
	if inv.reply != nil {
		inv.reply(results...)
	}
}

// Fail completes the invocation with an error, delivered to the remote
// caller as a D-Bus error (spec.md §7 "Handler errors").
func (inv *Invocation) Fail(err error) {
	if inv.fail != nil {
		inv.fail(err)
	}
}

// NewInvocation builds an Invocation bound to reply/fail callbacks. Used
// by the publisher (component D) to adapt a godbus method call into the
// tree's handler contract.
func NewInvocation(path ObjectPath, iface, method string, args []Value, reply func(...Value), fail func(error)) *Invocation {
	return &Invocation{Path: path, Interface: iface, Method: method, Args: args, reply: reply, fail: fail}
}

// MethodHandler services one inbound method call.
type MethodHandler func(inv *Invocation)

// Method describes one D-Bus method exposed by an Interface.
type Method struct {
	Name       string
	InSig      []string
	OutSig     string
	Handler    MethodHandler
}

// Signal describes one D-Bus signal an Interface may emit.
type Signal struct {
	Name string
	Sig  []string
}

// Interface is a named D-Bus interface attached to a Node
// (spec.md §3.1). Its Methods/Properties/Signals lists are ordered as
// declared, for stable introspection output.
type Interface struct {
	Kind       InterfaceKind
	Name       string
	Methods    []Method
	Properties []Property
	Signals    []Signal

	// Update is the characteristic/descriptor's on_updated_value handler
	// (spec.md §4.E), set by CharacteristicBuilder/DescriptorBuilder's
	// OnUpdatedValue so the dispatcher (component E/G) can look it up by
	// path alone without depending on the DSL builder types.
	Update UpdateHandler
}

func (i *Interface) findProperty(name string) (*Property, bool) {
	for idx := range i.Properties {
		if i.Properties[idx].Name == name {
			return &i.Properties[idx], true
		}
	}
	return nil, false
}

func (i *Interface) findMethod(name string) (*Method, bool) {
	for idx := range i.Methods {
		if i.Methods[idx].Name == name {
			return &i.Methods[idx], true
		}
	}
	return nil, false
}

// NodeID is a stable arena index. Design notes §9: "the tree is a vector
// of nodes keyed by stable indices" rather than intrusive pointers.
type NodeID int

const noParent NodeID = -1

// Node is one element of the GATT object tree, living at a fixed
// ObjectPath (spec.md §3.1).
type Node struct {
	id       NodeID
	name     string
	path     ObjectPath
	parent   NodeID
	children []NodeID
	ifaces   []*Interface
	ifaceIdx map[InterfaceKind]int
	published bool

	tree *Tree
}

// ID returns the node's stable arena index.
func (n *Node) ID() NodeID { return n.id }

// Path returns the node's fully-qualified object path.
func (n *Node) Path() ObjectPath { return n.path }

// Published reports whether the node contributes to GetManagedObjects.
func (n *Node) Published() bool { return n.published }

// SetPublished controls whether the node is included in
// GetManagedObjects (spec.md §3.1); internal bookkeeping nodes such as the
// tree root are unpublished.
func (n *Node) SetPublished(p bool) { n.published = p }

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node {
	if n.parent == noParent {
		return nil
	}
	return n.tree.nodes[n.parent]
}

// Children returns the node's children in declaration order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	for i, id := range n.children {
		out[i] = n.tree.nodes[id]
	}
	return out
}

// Interfaces returns the node's attached interfaces in declaration order.
func (n *Node) Interfaces() []*Interface {
	return append([]*Interface(nil), n.ifaces...)
}

// Interface returns the attached interface of the given kind, if any.
func (n *Node) Interface(kind InterfaceKind) (*Interface, bool) {
	if idx, ok := n.ifaceIdx[kind]; ok {
		return n.ifaces[idx], true
	}
	return nil, false
}

// InterfaceByName returns the attached interface with the given D-Bus
// interface name, if any.
func (n *Node) InterfaceByName(name string) (*Interface, bool) {
	for _, iface := range n.ifaces {
		if iface.Name == name {
			return iface, true
		}
	}
	return nil, false
}

// AddInterface attaches iface to the node. A node may hold at most one
// interface of each InterfaceKind (spec.md §4.B).
func (n *Node) AddInterface(iface *Interface) error {
	if _, exists := n.ifaceIdx[iface.Kind]; exists {
		return ErrAlreadyExists
	}
	if n.ifaceIdx == nil {
		n.ifaceIdx = make(map[InterfaceKind]int)
	}
	n.ifaceIdx[iface.Kind] = len(n.ifaces)
	n.ifaces = append(n.ifaces, iface)
	return nil
}

// AddChild appends a new, uniquely-named child node (spec.md §4.B).
func (n *Node) AddChild(name string) (*Node, error) {
	return n.tree.addChild(n, name)
}

// Tree is the arena-indexed GATT object model from spec.md §4.B and
// design notes §9: a pure, in-memory structure with no I/O of its own.
type Tree struct {
	mu        sync.RWMutex
	nodes     []*Node
	pathIndex map[ObjectPath]NodeID
	rootID    NodeID
}

// NewTree creates a tree whose root lives at rootPath. The root is
// unpublished by default, matching "an internal object-manager node is
// unpublished" (spec.md §3.1) -- callers that want the root itself
// enumerated in GetManagedObjects may call SetPublished(true) on Root().
func NewTree(rootPath ObjectPath) *Tree {
	t := &Tree{pathIndex: make(map[ObjectPath]NodeID)}
	root := &Node{id: 0, path: rootPath, parent: noParent, tree: t, published: false}
	t.nodes = append(t.nodes, root)
	t.pathIndex[rootPath] = 0
	return t
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.rootID]
}

func (t *Tree) addChild(parent *Node, name string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path, err := parent.path.Append(name)
	if err != nil {
		return nil, err
	}
	if _, exists := t.pathIndex[path]; exists {
		return nil, ErrDuplicatePath
	}

	child := &Node{
		id:        NodeID(len(t.nodes)),
		name:      name,
		path:      path,
		parent:    parent.id,
		tree:      t,
		published: true,
	}
	t.nodes = append(t.nodes, child)
	t.pathIndex[path] = child.id
	parent.children = append(parent.children, child.id)
	return child, nil
}

// Node looks up a node by path.
func (t *Tree) Node(path ObjectPath) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.pathIndex[path]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// FindInterface walks the tree for the interface named ifaceName at path.
func (t *Tree) FindInterface(path ObjectPath, ifaceName string) (*Interface, error) {
	node, ok := t.Node(path)
	if !ok {
		return nil, ErrNotFound
	}
	iface, ok := node.InterfaceByName(ifaceName)
	if !ok {
		return nil, ErrUnknownInterface
	}
	return iface, nil
}

// FindProperty looks up a single property by path/interface/name.
func (t *Tree) FindProperty(path ObjectPath, ifaceName, propName string) (*Property, error) {
	iface, err := t.FindInterface(path, ifaceName)
	if err != nil {
		return nil, err
	}
	prop, ok := iface.findProperty(propName)
	if !ok {
		return nil, ErrUnknownProperty
	}
	return prop, nil
}

// AllProperties returns every property on the interface at path, as the
// org.freedesktop.DBus.Properties.GetAll handler needs.
func (t *Tree) AllProperties(path ObjectPath, ifaceName string) (map[string]Value, error) {
	iface, err := t.FindInterface(path, ifaceName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(iface.Properties))
	for _, p := range iface.Properties {
		if p.Get == nil {
			continue
		}
		v, err := p.Get()
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

// CallMethod dispatches to the named method's handler via inv, returning
// true iff a handler was found and invoked (spec.md §4.B). The handler,
// not CallMethod, is responsible for completing inv.
func (t *Tree) CallMethod(path ObjectPath, ifaceName, methodName string, inv *Invocation) (bool, error) {
	iface, err := t.FindInterface(path, ifaceName)
	if err != nil {
		return false, err
	}
	m, ok := iface.findMethod(methodName)
	if !ok {
		return false, ErrUnknownInterface
	}
	m.Handler(inv)
	return true, nil
}

// GetManagedObjects implements spec.md §4.B's key algorithm: a stable
// pre-order walk of every published node, collecting each attached
// interface's current property values. Unpublished nodes (and any
// interfaces attached to them) are elided, though their published
// descendants are still visited.
func (t *Tree) GetManagedObjects() (map[ObjectPath]map[string]map[string]Value, error) {
	t.mu.RLock()
	root := t.nodes[t.rootID]
	t.mu.RUnlock()

	out := make(map[ObjectPath]map[string]map[string]Value)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n.published {
			ifaceProps := make(map[string]map[string]Value, len(n.ifaces))
			for _, iface := range n.ifaces {
				props := make(map[string]Value, len(iface.Properties))
				for _, p := range iface.Properties {
					if p.Get == nil {
						continue
					}
					v, err := p.Get()
					if err != nil {
						return err
					}
					props[p.Name] = v
				}
				ifaceProps[iface.Name] = props
			}
			out[n.path] = ifaceProps
		}
		for _, child := range n.Children() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateHandlerFor returns the on_updated_value handler and owning
// interface name registered for path's characteristic or descriptor, if
// any (spec.md §4.E).
func (t *Tree) UpdateHandlerFor(path ObjectPath) (UpdateHandler, string, bool) {
	node, ok := t.Node(path)
	if !ok {
		return nil, "", false
	}
	if iface, ok := node.Interface(IfaceGattCharacteristic); ok && iface.Update != nil {
		return iface.Update, iface.Name, true
	}
	if iface, ok := node.Interface(IfaceGattDescriptor); ok && iface.Update != nil {
		return iface.Update, iface.Name, true
	}
	return nil, "", false
}

// SortedPaths returns every node path in the tree, sorted lexicographically
// by path string (not in tree pre-order).
func (t *Tree) SortedPaths() []ObjectPath {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]ObjectPath, 0, len(t.nodes))
	for p := range t.pathIndex {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}
