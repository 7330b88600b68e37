package bzperi

import (
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// AdapterInfo mirrors the cached BlueZ Adapter1 properties the controller
// needs for selection and configuration (spec.md §3.1).
type AdapterInfo struct {
	Path         ObjectPath
	Address      string
	Name         string
	Alias        string
	Powered      bool
	Discoverable bool
	Connectable  bool
	Pairable     bool
	Discovering  bool
	UUIDs        []string
}

// DeviceInfo tracks one connected (or previously connected) remote peer
// (spec.md §3.1).
type DeviceInfo struct {
	Path      ObjectPath
	Address   string
	Name      string
	Alias     string
	Connected bool
	Paired    bool
	Trusted   bool
	RSSI      int16
	UUIDs     []string
}

// ConnectionCallback is invoked whenever a device's connected state
// changes (spec.md §4.F "emits a host-visible callback").
type ConnectionCallback func(connected bool, path ObjectPath)

var readOnlyAdapterProperties = map[string]bool{
	"Address": true, "AddressType": true, "Name": true, "Class": true,
	"UUIDs": true, "Modalias": true, "Roles": true, "ExperimentalFeatures": true,
}

// AdapterController owns the relationship with BlueZ: adapter discovery
// and selection, property configuration, GATT application and
// advertisement registration, device connection tracking, and recovery
// from a vanished BlueZ service (spec.md §4.F). Grounded on
// other_examples' pible bluez_manager.go/preflight.go adapter-selection
// shape (see DESIGN.md, component F).
type AdapterController struct {
	pub     *Publisher
	root    *Node
	adapter AdapterInfo

	mu            sync.Mutex
	devices       map[ObjectPath]*DeviceInfo
	advertisement *Advertisement
	onConnection  ConnectionCallback
	onRecovery    func()
	shuttingDown  bool
}

// NewAdapterController constructs a controller bound to pub's bus
// connection; root is the GATT tree root, needed to attach the
// advertisement node.
func NewAdapterController(pub *Publisher, root *Node) *AdapterController {
	return &AdapterController{pub: pub, root: root, devices: make(map[ObjectPath]*DeviceInfo)}
}

// OnConnectionChange registers the callback invoked on device
// connect/disconnect.
func (a *AdapterController) OnConnectionChange(fn ConnectionCallback) { a.onConnection = fn }

// OnBlueZRecovery registers the callback invoked when BlueZ vanishes and
// reappears, so the caller (the lifecycle state machine, component G)
// can re-run its initialisation checklist.
func (a *AdapterController) OnBlueZRecovery(fn func()) { a.onRecovery = fn }

// Adapter returns the currently selected adapter's cached info.
func (a *AdapterController) Adapter() AdapterInfo { return a.adapter }

// Initialize discovers BlueZ adapters via GetManagedObjects, selects one,
// and installs its handlers for the BlueZ signals the publisher delivers
// (spec.md §4.F). The bus match rules themselves are added by
// Publisher.SubscribeBlueZSignals.
func (a *AdapterController) Initialize(preferred string) error {
	managed, err := a.getBlueZManagedObjects()
	if err != nil {
		return err
	}

	var candidates []AdapterInfo
	for path, ifaces := range managed {
		props, ok := ifaces["org.bluez.Adapter1"]
		if !ok {
			continue
		}
		candidates = append(candidates, adapterInfoFromProps(ObjectPath(path), props))
	}
	if len(candidates) == 0 {
		return ErrNotFound
	}

	selected, ok := selectAdapter(candidates, preferred)
	if !ok {
		return ErrNotFound
	}
	a.adapter = selected

	a.pub.OnPropertiesChanged(a.handlePropertiesChanged)
	a.pub.OnInterfacesAdded(a.handleInterfacesAdded)
	a.pub.OnInterfacesRemoved(a.handleInterfacesRemoved)
	a.pub.OnNameOwnerChanged(a.handleNameOwnerChanged)
	return nil
}

func (a *AdapterController) getBlueZManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := a.pub.Conn().Object("org.bluez", "/")
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return nil, mapBlueZError(call.Err)
	}
	if err := call.Store(&managed); err != nil {
		return nil, ErrFailed
	}
	return managed, nil
}

func adapterInfoFromProps(path ObjectPath, props map[string]dbus.Variant) AdapterInfo {
	info := AdapterInfo{Path: path}
	if v, ok := props["Address"]; ok {
		info.Address, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		info.Name, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok {
		info.Alias, _ = v.Value().(string)
	}
	if v, ok := props["Powered"]; ok {
		info.Powered, _ = v.Value().(bool)
	}
	if v, ok := props["Discoverable"]; ok {
		info.Discoverable, _ = v.Value().(bool)
	}
	if v, ok := props["Pairable"]; ok {
		info.Pairable, _ = v.Value().(bool)
	}
	if v, ok := props["Discovering"]; ok {
		info.Discovering, _ = v.Value().(bool)
	}
	if v, ok := props["UUIDs"]; ok {
		info.UUIDs, _ = v.Value().([]string)
	}
	return info
}

// selectAdapter implements spec.md §4.F's selection rules: (1) preferred
// matches a path, address, or trailing substring; (2) the first powered
// adapter; (3) the first enumerated adapter.
func selectAdapter(candidates []AdapterInfo, preferred string) (AdapterInfo, bool) {
	if preferred != "" {
		for _, c := range candidates {
			if string(c.Path) == preferred || c.Address == preferred || strings.HasSuffix(string(c.Path), preferred) {
				return c, true
			}
		}
	}
	for _, c := range candidates {
		if c.Powered {
			return c, true
		}
	}
	return candidates[0], true
}

// SetProperty writes an Adapter1 property. Read-only properties fail
// with ErrNotSupported without an RPC (spec.md §4.F).
func (a *AdapterController) SetProperty(name string, value Value) error {
	if readOnlyAdapterProperties[name] {
		return ErrNotSupported
	}
	obj := a.pub.Conn().Object("org.bluez", dbus.ObjectPath(a.adapter.Path))
	return DefaultRetryPolicy.Attempt(nil, func(attempt int) error {
		call := obj.Call("org.freedesktop.DBus.Properties.Set", 0, "org.bluez.Adapter1", name, value.ToVariant())
		if call.Err != nil {
			return mapBlueZError(call.Err)
		}
		return nil
	})
}

// SetPowered is a convenience wrapper over SetProperty("Powered", ...).
func (a *AdapterController) SetPowered(enabled bool) error {
	if err := a.SetProperty("Powered", BoolValue(enabled)); err != nil {
		return err
	}
	a.adapter.Powered = enabled
	return nil
}

// SetDiscoverable is a convenience wrapper over SetProperty("Discoverable", ...),
// optionally also setting DiscoverableTimeout.
func (a *AdapterController) SetDiscoverable(enabled bool, timeoutSeconds *uint32) error {
	if err := a.SetProperty("Discoverable", BoolValue(enabled)); err != nil {
		return err
	}
	a.adapter.Discoverable = enabled
	if timeoutSeconds != nil {
		return a.SetProperty("DiscoverableTimeout", Uint32Value(*timeoutSeconds))
	}
	return nil
}

// SetBondable is a convenience wrapper over SetProperty("Pairable", ...).
func (a *AdapterController) SetBondable(enabled bool) error {
	if err := a.SetProperty("Pairable", BoolValue(enabled)); err != nil {
		return err
	}
	a.adapter.Pairable = enabled
	return nil
}

// SetName is a convenience wrapper over SetProperty("Alias", ...). short
// is accepted for API symmetry with the host-facing config but is not a
// separate BlueZ property.
func (a *AdapterController) SetName(alias string, short string) error {
	if alias == "" {
		return nil
	}
	if err := a.SetProperty("Alias", StringValue(alias)); err != nil {
		return err
	}
	a.adapter.Alias = alias
	return nil
}

// SetConnectable is unsupported on modern BlueZ: modern LE advertising
// embeds connectable semantics in the advertisement type, so this
// returns ErrNotSupported without ever calling the bus (spec.md §4.F,
// design notes §9 open question -- retained as a documented no-op).
func (a *AdapterController) SetConnectable(enabled bool) error {
	return ErrNotSupported
}

// SetAdvertisingAsync is the hardest operation in the controller
// (spec.md §4.F). When enabling, it verifies/sets Powered, constructs the
// advertisement node if absent, and registers it with
// LEAdvertisingManager1, retrying up to AdvertisingRetryPolicy's 5
// attempts on retryable failures. When disabling, it unregisters any
// existing advertisement. The work, retries included, runs on a new
// goroutine, so SetAdvertisingAsync returns at once; callback is invoked
// with the final result on that goroutine.
func (a *AdapterController) SetAdvertisingAsync(enabled bool, allUUIDs []UUID, localName string, callback func(error)) {
	go func() {
		callback(a.setAdvertising(enabled, allUUIDs, localName))
	}()
}

func (a *AdapterController) setAdvertising(enabled bool, allUUIDs []UUID, localName string) error {
	if !enabled {
		a.mu.Lock()
		adv := a.advertisement
		a.mu.Unlock()
		if adv == nil {
			return nil
		}
		obj := a.pub.Conn().Object("org.bluez", dbus.ObjectPath(a.adapter.Path))
		call := obj.Call("org.bluez.LEAdvertisingManager1.UnregisterAdvertisement", 0, dbus.ObjectPath(adv.Path()))
		if call.Err != nil {
			return mapBlueZError(call.Err)
		}
		a.mu.Lock()
		a.advertisement = nil
		a.mu.Unlock()
		return nil
	}

	if !a.adapter.Powered {
		if err := a.SetPowered(true); err != nil {
			return err
		}
	}

	a.mu.Lock()
	adv := a.advertisement
	a.mu.Unlock()
	if adv == nil {
		var err error
		adv, err = NewAdvertisement(a.root, allUUIDs, localName, false)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.advertisement = adv
		a.mu.Unlock()
	}

	return AdvertisingRetryPolicy.Attempt(nil, func(attempt int) error {
		obj := a.pub.Conn().Object("org.bluez", dbus.ObjectPath(a.adapter.Path))
		call := obj.Call("org.bluez.LEAdvertisingManager1.RegisterAdvertisement", 0, dbus.ObjectPath(adv.Path()), map[string]dbus.Variant{})
		if call.Err != nil {
			return mapBlueZError(call.Err)
		}
		return nil
	})
}

// Devices returns a snapshot of every currently tracked device.
func (a *AdapterController) Devices() []DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]DeviceInfo, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, *d)
	}
	return out
}

func (a *AdapterController) handlePropertiesChanged(sender string, path ObjectPath, iface string, changed map[string]dbus.Variant, invalidated []string) {
	if iface != "org.bluez.Device1" {
		return
	}
	v, ok := changed["Connected"]
	if !ok {
		return
	}
	connected, _ := v.Value().(bool)
	a.setDeviceConnected(path, connected)
}

func (a *AdapterController) handleInterfacesAdded(path ObjectPath, ifaces map[string]map[string]dbus.Variant) {
	props, ok := ifaces["org.bluez.Device1"]
	if !ok {
		return
	}
	connected, _ := props["Connected"].Value().(bool)
	if connected {
		a.setDeviceConnected(path, true)
	}
}

func (a *AdapterController) handleInterfacesRemoved(path ObjectPath, removedIfaces []string) {
	for _, iface := range removedIfaces {
		if iface == "org.bluez.Device1" {
			a.mu.Lock()
			dev, tracked := a.devices[path]
			wasConnected := tracked && dev.Connected
			delete(a.devices, path)
			a.mu.Unlock()
			if wasConnected && a.onConnection != nil {
				a.onConnection(false, path)
			}
			return
		}
	}
}

func (a *AdapterController) setDeviceConnected(path ObjectPath, connected bool) {
	a.mu.Lock()
	dev, exists := a.devices[path]
	if !exists {
		dev = &DeviceInfo{Path: path}
		a.devices[path] = dev
	}
	dev.Connected = connected
	a.mu.Unlock()

	if a.onConnection != nil {
		a.onConnection(connected, path)
	}
}

// handleNameOwnerChanged implements spec.md §4.F's BlueZ-vanish recovery:
// on new_owner=="" (BlueZ vanished), wait 5s and then invoke the
// OnBlueZRecovery callback once, unless shutdown has begun. Any retry
// after a failed recovery is left to that callback.
func (a *AdapterController) handleNameOwnerChanged(name, oldOwner, newOwner string) {
	if name != "org.bluez" || newOwner != "" {
		return
	}
	go a.recoverFromBlueZLoss()
}

func (a *AdapterController) recoverFromBlueZLoss() {
	time.Sleep(5 * time.Second)
	a.mu.Lock()
	down := a.shuttingDown
	a.mu.Unlock()
	if down || a.onRecovery == nil {
		return
	}
	a.onRecovery()
}

// TriggerShutdown marks the controller as shutting down so any pending
// recovery goroutine becomes a no-op. It does not unregister the
// advertisement and does not interrupt a retry loop already in progress.
func (a *AdapterController) TriggerShutdown() {
	a.mu.Lock()
	a.shuttingDown = true
	a.mu.Unlock()
}
