package bzperi

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// Publisher bridges the GATT tree (component B) to the system bus
// (spec.md §4.D). It owns the bus connection, the well-known name, every
// exported object path, and BlueZ signal subscriptions. Grounded on
// other_examples' Application.expose()/exportTree() shape (see
// DESIGN.md, component D) adapted from a single fixed object set to an
// arbitrary tree walk.
type Publisher struct {
	conn     *dbus.Conn
	tree     *Tree
	busName  string
	rootPath ObjectPath

	mu        sync.Mutex
	exported  map[string]bool // "path|iface" already exported, for rollback
	sigCh     chan *dbus.Signal
	sigDoneCh chan struct{}

	onPropertiesChanged func(sender string, path ObjectPath, iface string, changed map[string]dbus.Variant, invalidated []string)
	onInterfacesAdded   func(path ObjectPath, ifaces map[string]map[string]dbus.Variant)
	onInterfacesRemoved func(path ObjectPath, ifaces []string)
	onNameOwnerChanged  func(name, oldOwner, newOwner string)
}

// NewPublisher constructs a Publisher for tree, not yet connected.
func NewPublisher(tree *Tree, rootPath ObjectPath) *Publisher {
	return &Publisher{tree: tree, rootPath: rootPath, exported: make(map[string]bool)}
}

// AcquireBus connects to the system bus (spec.md §4.D). Fails with
// ErrBusUnavailable.
func (p *Publisher) AcquireBus() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return ErrBusUnavailable
	}
	p.conn = conn
	return nil
}

// Conn returns the underlying bus connection, for callers (the adapter
// controller) that issue their own method calls.
func (p *Publisher) Conn() *dbus.Conn { return p.conn }

// AcquireName requests the well-known bus name derived from the service
// name (spec.md §3.2). Fails with ErrNameLost if the name could not be
// acquired outright (another owner holds it and refuses to queue us).
func (p *Publisher) AcquireName(name string) error {
	p.busName = name
	reply, err := p.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return ErrNameLost
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		return ErrNameLost
	}
	return nil
}

// ReleaseName releases the well-known name, best-effort, during shutdown.
func (p *Publisher) ReleaseName() {
	if p.conn == nil || p.busName == "" {
		return
	}
	_, _ = p.conn.ReleaseName(p.busName)
}

// RegisterTree exports every node of tree under the bus connection:
// org.freedesktop.DBus.Properties and Introspectable on every node, the
// node's attached domain interface (if any), and
// org.freedesktop.DBus.ObjectManager on the root. On any single export
// failure, every previously exported (path, interface) pair from this
// call is unexported before the error is returned (spec.md §4.D
// "rolled back").
func (p *Publisher) RegisterTree() error {
	var registered []struct{ path, iface string }
	rollback := func() {
		for _, r := range registered {
			_ = p.conn.Export(nil, dbus.ObjectPath(r.path), r.iface)
			p.mu.Lock()
			delete(p.exported, r.path+"|"+r.iface)
			p.mu.Unlock()
		}
	}

	var walk func(n *Node) error
	walk = func(n *Node) error {
		path := n.Path()

		if err := p.conn.Export(newPropertiesHandler(p.tree, path, p), dbus.ObjectPath(path), IfaceNameProperties); err != nil {
			rollback()
			return err
		}
		registered = append(registered, struct{ path, iface string }{string(path), IfaceNameProperties})

		if err := p.conn.Export(newIntrospectHandler(p.tree, path), dbus.ObjectPath(path), IfaceNameIntrospectable); err != nil {
			rollback()
			return err
		}
		registered = append(registered, struct{ path, iface string }{string(path), IfaceNameIntrospectable})

		for _, iface := range n.Interfaces() {
			handler := newInterfaceHandler(p.tree, path, iface)
			if handler == nil {
				continue
			}
			if err := p.conn.Export(handler, dbus.ObjectPath(path), iface.Name); err != nil {
				rollback()
				return err
			}
			registered = append(registered, struct{ path, iface string }{string(path), iface.Name})
			p.mu.Lock()
			p.exported[string(path)+"|"+iface.Name] = true
			p.mu.Unlock()
		}

		for _, child := range n.Children() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(p.tree.Root()); err != nil {
		return err
	}
	return nil
}

// RegisterApplication invokes org.bluez.GattManager1.RegisterApplication
// on the adapter at adapterPath (spec.md §4.D).
func (p *Publisher) RegisterApplication(adapterPath ObjectPath) error {
	obj := p.conn.Object("org.bluez", dbus.ObjectPath(adapterPath))
	call := obj.Call("org.bluez.GattManager1.RegisterApplication", 0, dbus.ObjectPath(p.rootPath), map[string]dbus.Variant{})
	if call.Err != nil {
		return mapBlueZError(call.Err)
	}
	return nil
}

// UnregisterApplication is the inverse of RegisterApplication, used
// during shutdown/recovery.
func (p *Publisher) UnregisterApplication(adapterPath ObjectPath) error {
	obj := p.conn.Object("org.bluez", dbus.ObjectPath(adapterPath))
	call := obj.Call("org.bluez.GattManager1.UnregisterApplication", 0, dbus.ObjectPath(p.rootPath))
	if call.Err != nil {
		return mapBlueZError(call.Err)
	}
	return nil
}

// EmitPropertiesChanged emits PropertiesChanged(interface, changed, [])
// on path (spec.md §4.D); invalidated is always empty.
func (p *Publisher) EmitPropertiesChanged(path ObjectPath, iface string, changed map[string]Value) error {
	return p.conn.Emit(dbus.ObjectPath(path), "org.freedesktop.DBus.Properties.PropertiesChanged",
		iface, ValuesToVariantMap(changed), []string{})
}

// SubscribeBlueZSignals subscribes to PropertiesChanged, InterfacesAdded,
// InterfacesRemoved scoped to sender org.bluez, and NameOwnerChanged for
// org.bluez only (spec.md §4.D "Signal subscriptions"). Delivered
// signals are dispatched to whichever On* callback is set.
func (p *Publisher) SubscribeBlueZSignals() error {
	rules := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchSender("org.bluez"),
	}
	if err := p.conn.AddMatchSignal(rules...); err != nil {
		return err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager"),
		dbus.WithMatchMember("InterfacesAdded"),
		dbus.WithMatchSender("org.bluez"),
	); err != nil {
		return err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager"),
		dbus.WithMatchMember("InterfacesRemoved"),
		dbus.WithMatchSender("org.bluez"),
	); err != nil {
		return err
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, "org.bluez"),
	); err != nil {
		return err
	}

	p.sigCh = make(chan *dbus.Signal, 32)
	p.sigDoneCh = make(chan struct{})
	p.conn.Signal(p.sigCh)
	go p.signalLoop()
	return nil
}

// UnsubscribeBlueZSignals tears down the signal channel for orderly
// shutdown.
func (p *Publisher) UnsubscribeBlueZSignals() {
	if p.sigCh == nil {
		return
	}
	p.conn.RemoveSignal(p.sigCh)
	close(p.sigDoneCh)
}

func (p *Publisher) signalLoop() {
	for {
		select {
		case sig, ok := <-p.sigCh:
			if !ok {
				return
			}
			p.handleSignal(sig)
		case <-p.sigDoneCh:
			return
		}
	}
}

func (p *Publisher) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		if p.onPropertiesChanged == nil || len(sig.Body) < 2 {
			return
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		var invalidated []string
		if len(sig.Body) > 2 {
			invalidated, _ = sig.Body[2].([]string)
		}
		path, err := NewObjectPath(string(sig.Path))
		if err != nil {
			return
		}
		p.onPropertiesChanged(sig.Sender, path, iface, changed, invalidated)
	case "org.freedesktop.DBus.ObjectManager.InterfacesAdded":
		if p.onInterfacesAdded == nil || len(sig.Body) < 2 {
			return
		}
		objPath, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		path, err := NewObjectPath(string(objPath))
		if err != nil {
			return
		}
		p.onInterfacesAdded(path, ifaces)
	case "org.freedesktop.DBus.ObjectManager.InterfacesRemoved":
		if p.onInterfacesRemoved == nil || len(sig.Body) < 2 {
			return
		}
		objPath, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].([]string)
		path, err := NewObjectPath(string(objPath))
		if err != nil {
			return
		}
		p.onInterfacesRemoved(path, ifaces)
	case "org.freedesktop.DBus.NameOwnerChanged":
		if p.onNameOwnerChanged == nil || len(sig.Body) < 3 {
			return
		}
		name, _ := sig.Body[0].(string)
		oldOwner, _ := sig.Body[1].(string)
		newOwner, _ := sig.Body[2].(string)
		p.onNameOwnerChanged(name, oldOwner, newOwner)
	}
}

// OnPropertiesChanged registers the callback invoked for every
// PropertiesChanged signal from org.bluez.
func (p *Publisher) OnPropertiesChanged(fn func(sender string, path ObjectPath, iface string, changed map[string]dbus.Variant, invalidated []string)) {
	p.onPropertiesChanged = fn
}

// OnInterfacesAdded registers the callback invoked for every
// InterfacesAdded signal from org.bluez.
func (p *Publisher) OnInterfacesAdded(fn func(path ObjectPath, ifaces map[string]map[string]dbus.Variant)) {
	p.onInterfacesAdded = fn
}

// OnInterfacesRemoved registers the callback invoked for every
// InterfacesRemoved signal from org.bluez.
func (p *Publisher) OnInterfacesRemoved(fn func(path ObjectPath, ifaces []string)) {
	p.onInterfacesRemoved = fn
}

// OnNameOwnerChanged registers the callback invoked for NameOwnerChanged
// where the name is org.bluez.
func (p *Publisher) OnNameOwnerChanged(fn func(name, oldOwner, newOwner string)) {
	p.onNameOwnerChanged = fn
}

// mapBlueZError translates a godbus call error into this package's error
// taxonomy, classifying it via the BlueZ error-name substring rules in
// Retryable (errors.go) so callers can decide whether to retry.
func mapBlueZError(err error) error {
	if err == nil {
		return nil
	}
	if dbusErr, ok := err.(dbus.Error); ok {
		mapped := NewHandlerError(dbusErr.Name, dbusErr.Name)
		if Retryable(mapped) {
			return ErrFailed
		}
		return mapped
	}
	return err
}
