package bzperi

import (
	"encoding/xml"

	"github.com/fatih/structs"
	"github.com/godbus/dbus/v5/introspect"
)

// propertySnapshot is the typed shape fatih/structs flattens into a
// map[string]interface{} keyed by its structs tags (see snapshotMap); it
// mirrors the generated "Properties" structs the rest of the pack builds
// per-interface (see DESIGN.md, component B) but here it only carries the
// three fields every D-Bus interface exposes in its own introspection
// fragment. Neither GenerateIntrospectionXML nor GetManagedObjects uses
// it; both read the Property values directly.
type propertySnapshot struct {
	Name       string `structs:"name"`
	Access     string `structs:"access"`
	EmitsChange bool  `structs:"emits_change"`
}

func propertyAccess(p *Property) string {
	switch {
	case p.Flags&PropRead != 0 && p.Flags&PropWrite != 0:
		return "readwrite"
	case p.Flags&PropWrite != 0:
		return "write"
	default:
		return "read"
	}
}

func snapshotMap(p *Property) map[string]interface{} {
	snap := propertySnapshot{
		Name:        p.Name,
		Access:      propertyAccess(p),
		EmitsChange: p.Flags&PropEmitsChange != 0,
	}
	return structs.Map(snap)
}

// GenerateIntrospectionXML renders the standard D-Bus introspection
// document for the node at path: its own interfaces (plus the ambient
// org.freedesktop.DBus.Introspectable/Properties interfaces every node
// exposes) and a <node> stub per child, as BlueZ's tooling expects
// (spec.md §4.B, "pure, takes only the node tree").
func (t *Tree) GenerateIntrospectionXML(path ObjectPath) (string, error) {
	node, ok := t.Node(path)
	if !ok {
		return "", ErrNotFound
	}

	n := &introspect.Node{
		Name:       string(path),
		Interfaces: []introspect.Interface{introspect.IntrospectData, propertiesInterfaceData()},
	}

	for _, iface := range node.ifaces {
		ifaceData := introspect.Interface{Name: iface.Name}
		for _, m := range iface.Methods {
			method := introspect.Method{Name: m.Name}
			for _, sig := range m.InSig {
				method.Args = append(method.Args, introspect.Arg{Type: sig, Direction: "in"})
			}
			if m.OutSig != "" {
				method.Args = append(method.Args, introspect.Arg{Type: m.OutSig, Direction: "out"})
			}
			ifaceData.Methods = append(ifaceData.Methods, method)
		}
		for _, p := range iface.Properties {
			access := "read"
			switch {
			case p.Get != nil && p.Set != nil:
				access = "readwrite"
			case p.Set != nil:
				access = "write"
			}
			ifaceData.Properties = append(ifaceData.Properties, introspect.Property{
				Name:   p.Name,
				Type:   p.Signature,
				Access: access,
			})
		}
		for _, s := range iface.Signals {
			signal := introspect.Signal{Name: s.Name}
			for _, sig := range s.Sig {
				signal.Args = append(signal.Args, introspect.Arg{Type: sig})
			}
			ifaceData.Signals = append(ifaceData.Signals, signal)
		}
		n.Interfaces = append(n.Interfaces, ifaceData)
	}

	for _, child := range node.Children() {
		n.Children = append(n.Children, introspect.Node{Name: child.name})
	}

	out, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

func propertiesInterfaceData() introspect.Interface {
	return introspect.Interface{
		Name: IfaceNameProperties,
		Methods: []introspect.Method{
			{
				Name: "Get",
				Args: []introspect.Arg{
					{Name: "interface", Type: "s", Direction: "in"},
					{Name: "name", Type: "s", Direction: "in"},
					{Name: "value", Type: "v", Direction: "out"},
				},
			},
			{
				Name: "Set",
				Args: []introspect.Arg{
					{Name: "interface", Type: "s", Direction: "in"},
					{Name: "name", Type: "s", Direction: "in"},
					{Name: "value", Type: "v", Direction: "in"},
				},
			},
			{
				Name: "GetAll",
				Args: []introspect.Arg{
					{Name: "interface", Type: "s", Direction: "in"},
					{Name: "properties", Type: "a{sv}", Direction: "out"},
				},
			},
		},
		Signals: []introspect.Signal{
			{
				Name: "PropertiesChanged",
				Args: []introspect.Arg{
					{Name: "interface", Type: "s"},
					{Name: "changed_properties", Type: "a{sv}"},
					{Name: "invalidated_properties", Type: "as"},
				},
			},
		},
	}
}
