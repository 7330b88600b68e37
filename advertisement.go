package bzperi

// Advertising AD-structure byte costs, legacy (non-extended) LE
// advertising, per spec.md §3.2/§4.F "legacy 31-byte advertising budget".
// This replaces the teacher's raw EIR-packet byte-builder
// (advPacket/appendUUIDFit) with a pure budget calculation: BlueZ itself
// encodes the LEAdvertisement1 properties we expose here onto the wire.
const (
	adBudgetBytes         = 31
	adFlagsStructBytes    = 3 // length(1) + type(1) + flags(1)
	adUUIDListHeaderBytes = 2 // length(1) + type(1); 2 bytes per 16-bit UUID follow
	adUUIDEntryBytes      = 2
	adTxPowerStructBytes  = 3 // length(1) + type(1) + power(1)
	adNameHeaderBytes     = 2 // length(1) + type(1); name bytes follow
)

// AdvertiseInclude names the optional fields from spec.md §3.1
// ("Includes (subset of {local-name, tx-power})").
type AdvertiseInclude string

const (
	IncludeLocalName AdvertiseInclude = "local-name"
	IncludeTxPower   AdvertiseInclude = "tx-power"
)

// AdvertisementType is "peripheral" or "broadcast" (spec.md §3.1).
type AdvertisementType string

const (
	AdvertisementPeripheral AdvertisementType = "peripheral"
	AdvertisementBroadcast  AdvertisementType = "broadcast"
)

// advertisementState holds the mutable fields behind the advertisement
// node's properties.
type advertisementState struct {
	adType       AdvertisementType
	serviceUUIDs []UUID
	includes     []AdvertiseInclude
	localName    string
	released     bool
}

// Advertisement wraps the LEAdvertisement1 node the adapter controller
// registers with BlueZ's LEAdvertisingManager1 (spec.md §3.1, §4.F). It
// is constructed by the adapter controller, not by user configurators --
// "Registered separately from the GATT tree."
type Advertisement struct {
	node  *Node
	state *advertisementState
}

// NewAdvertisement creates the advertisement node as a child of root
// named "advertisement0" (spec.md §6.1). allUUIDs is the full set of
// service UUIDs declared in the GATT tree; NewAdvertisement applies the
// AD-budget policy itself before exposing ServiceUUIDs.
func NewAdvertisement(root *Node, allUUIDs []UUID, localName string, includeTxPower bool) (*Advertisement, error) {
	node, err := root.AddChild("advertisement0")
	if err != nil {
		return nil, err
	}
	node.SetPublished(true)

	includes := []AdvertiseInclude{IncludeLocalName}
	if includeTxPower {
		includes = append(includes, IncludeTxPower)
	}

	st := &advertisementState{
		adType:       AdvertisementPeripheral,
		serviceUUIDs: fitServiceUUIDs(allUUIDs, localName, includeTxPower),
		includes:     includes,
		localName:    localName,
	}
	adv := &Advertisement{node: node, state: st}

	iface := &Interface{
		Kind: IfaceAdvertisement,
		Name: IfaceNameLEAdvertisement,
		Properties: []Property{
			{Name: "Type", Signature: "s", Flags: PropRead, Get: func() (Value, error) {
				return StringValue(string(st.adType)), nil
			}},
			{Name: "ServiceUUIDs", Signature: "as", Flags: PropRead, Get: func() (Value, error) {
				vals := make([]Value, len(st.serviceUUIDs))
				for i, u := range st.serviceUUIDs {
					vals[i] = StringValue(u.String())
				}
				return ArrayValue(vals), nil
			}},
			{Name: "Includes", Signature: "as", Flags: PropRead, Get: func() (Value, error) {
				vals := make([]Value, len(st.includes))
				for i, inc := range st.includes {
					vals[i] = StringValue(string(inc))
				}
				return ArrayValue(vals), nil
			}},
		},
		Methods: []Method{
			{Name: "Release", Handler: adv.handleRelease},
		},
	}
	if err := node.AddInterface(iface); err != nil {
		return nil, err
	}
	return adv, nil
}

func (a *Advertisement) handleRelease(inv *Invocation) {
	a.state.released = true
	inv.Reply()
}

// Path returns the advertisement's object path.
func (a *Advertisement) Path() ObjectPath { return a.node.Path() }

// Released reports whether BlueZ called Release() on this advertisement.
func (a *Advertisement) Released() bool { return a.state.released }

// fitServiceUUIDs applies spec.md §4.F's AD-budget policy: only 16-bit
// UUIDs are ever advertised; 128-bit custom UUIDs are dropped outright;
// the remaining 16-bit UUIDs are kept, in declaration order, up to
// whatever fits in the legacy 31-byte advertising budget alongside the
// (always-on) flags AD structure, the local name, and tx-power if
// requested.
func fitServiceUUIDs(all []UUID, localName string, includeTxPower bool) []UUID {
	budget := adBudgetBytes - adFlagsStructBytes
	if localName != "" {
		budget -= adNameHeaderBytes + len(localName)
	}
	if includeTxPower {
		budget -= adTxPowerStructBytes
	}
	if budget < 0 {
		budget = 0
	}

	var short []UUID
	for _, u := range all {
		if _, ok := u.Short16(); ok {
			short = append(short, u)
		}
	}
	if len(short) == 0 {
		return nil
	}

	used := adUUIDListHeaderBytes
	var kept []UUID
	for _, u := range short {
		if used+adUUIDEntryBytes > budget {
			break
		}
		used += adUUIDEntryBytes
		kept = append(kept, u)
	}
	return kept
}
