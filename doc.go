// Package bzperi implements a Bluetooth Low Energy GATT peripheral on top
// of BlueZ's D-Bus API.
//
// GATT (Generic Attribute Profile) is the protocol used to expose
// services and characteristics from a BLE peripheral to a central
// (typically a phone or a hub). bzperi only implements the peripheral
// side: declare services and characteristics, attach read/write/notify
// handlers, and start a server that publishes the resulting object tree
// over the system bus and registers it with BlueZ's GattManager1.
//
// STATUS
//
// Central-side functionality (scanning, connecting, discovering a
// remote peripheral's services) is out of scope; see the Non-goals in
// the design notes.
//
// SETUP
//
// bzperi only supports Linux, with BlueZ 5.x running as a system service
// and reachable on the D-Bus system bus, e.g.:
//
//	sudo apt-get install bluez
//	sudo systemctl status bluetooth
//
// The process needs permission to own a well-known bus name and to call
// BlueZ's GattManager1/LEAdvertisingManager1/Adapter1 interfaces; either
// run as root or install a D-Bus policy file granting the needed method
// calls to a dedicated user.
//
// USAGE
//
// A server is built from a Registry of configurators, each declaring one
// or more services through the fluent DSL, then started with a
// ServerConfig:
//
//	registry := bzperi.NewRegistry()
//	registry.Register(func(b *bzperi.Builder) error {
//		svc, err := b.Service(bzperi.UUID16(0x180F), true) // Battery Service
//		if err != nil {
//			return err
//		}
//		level := 87
//		_, err = svc.Characteristic(bzperi.UUID16(0x2A19), bzperi.FlagRead, bzperi.FlagNotify)
//		if err != nil {
//			return err
//		}
//		return nil
//	})
//
//	srv := bzperi.NewServer(registry)
//	err := srv.Start(bzperi.ServerConfig{
//		ServiceName:       "bzperi.battery",
//		AdvertisingName:   "battery-demo",
//		EnableAdvertising: true,
//		InitTimeout:       5 * time.Second,
//		DataGetter:        func(name string) ([]byte, bool) { return nil, false },
//		DataSetter:        func(name string, data []byte) bool { return false },
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer srv.ShutdownAndWait()
//
// To notify, the host pushes the characteristic's path and interface name
// onto the server's update queue; the event loop's dispatcher picks it up and calls the
// characteristic's on_updated_value handler, which is expected to call
// UpdateContext.Emit to turn it into a PropertiesChanged signal:
//
//	char.OnUpdatedValue(func(ctx bzperi.UpdateContext) error {
//		return ctx.Emit(map[string]bzperi.Value{"Value": bzperi.BytesValue(currentLevel())})
//	})
//	srv.PushUpdate(char.Path(), bzperi.IfaceNameGattCharacteristic)
//
// See the rest of the docs, particularly ServerConfig and the Builder/
// ServiceBuilder/CharacteristicBuilder/DescriptorBuilder chain, for
// finer-grained control over advertising, adapter selection, and error
// handling.
package bzperi
