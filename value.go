package bzperi

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Kind tags the variant held by a Value. See the "GVariant equivalents"
// design note in spec.md §9.
type Kind int

const (
	KindBool Kind = iota
	KindByte
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat64
	KindString
	KindObjectPath
	KindSignature
	KindBytes
	KindArray
	KindDict
	KindVariant
	KindTuple
)

// Value is a tagged union over the D-Bus wire types this library needs to
// marshal for GATT method arguments/returns and property values
// (spec.md §9). It converts to and from dbus.Variant, so the tree
// (node.go) and the DSL handlers work only with Value, never with godbus
// types.
type Value struct {
	kind Kind

	boolVal   bool
	byteVal   byte
	i16Val    int16
	u16Val    uint16
	i32Val    int32
	u32Val    uint32
	i64Val    int64
	u64Val    uint64
	f64Val    float64
	strVal    string
	bytesVal  []byte
	arrVal    []Value
	dictVal   map[string]Value
	variantOf *Value
	tupleVal  []Value
}

func BoolValue(v bool) Value           { return Value{kind: KindBool, boolVal: v} }
func ByteValue(v byte) Value           { return Value{kind: KindByte, byteVal: v} }
func Int16Value(v int16) Value         { return Value{kind: KindInt16, i16Val: v} }
func Uint16Value(v uint16) Value       { return Value{kind: KindUint16, u16Val: v} }
func Int32Value(v int32) Value         { return Value{kind: KindInt32, i32Val: v} }
func Uint32Value(v uint32) Value       { return Value{kind: KindUint32, u32Val: v} }
func Int64Value(v int64) Value         { return Value{kind: KindInt64, i64Val: v} }
func Uint64Value(v uint64) Value       { return Value{kind: KindUint64, u64Val: v} }
func Float64Value(v float64) Value     { return Value{kind: KindFloat64, f64Val: v} }
func StringValue(v string) Value       { return Value{kind: KindString, strVal: v} }
func SignatureValue(v string) Value    { return Value{kind: KindSignature, strVal: v} }
func BytesValue(v []byte) Value        { return Value{kind: KindBytes, bytesVal: v} }
func ArrayValue(v []Value) Value       { return Value{kind: KindArray, arrVal: v} }
func DictValue(v map[string]Value) Value {
	return Value{kind: KindDict, dictVal: v}
}
func VariantValue(v Value) Value { return Value{kind: KindVariant, variantOf: &v} }
func TupleValue(v []Value) Value { return Value{kind: KindTuple, tupleVal: v} }

// ObjectPathValue wraps an ObjectPath as a D-Bus "o" value.
func ObjectPathValue(p ObjectPath) Value {
	return Value{kind: KindObjectPath, strVal: string(p)}
}

// Kind reports the tag of the value.
func (v Value) Kind() Kind { return v.kind }

// ToNative converts the Value into the plain Go type godbus expects on the
// wire (e.g. []byte for KindBytes, dbus.ObjectPath for KindObjectPath,
// map[string]interface{} for KindDict).
func (v Value) ToNative() interface{} {
	switch v.kind {
	case KindBool:
		return v.boolVal
	case KindByte:
		return v.byteVal
	case KindInt16:
		return v.i16Val
	case KindUint16:
		return v.u16Val
	case KindInt32:
		return v.i32Val
	case KindUint32:
		return v.u32Val
	case KindInt64:
		return v.i64Val
	case KindUint64:
		return v.u64Val
	case KindFloat64:
		return v.f64Val
	case KindString:
		return v.strVal
	case KindObjectPath:
		return dbus.ObjectPath(v.strVal)
	case KindSignature:
		return dbus.ParseSignatureMust(v.strVal)
	case KindBytes:
		return append([]byte(nil), v.bytesVal...)
	case KindArray:
		out := make([]interface{}, len(v.arrVal))
		for i, e := range v.arrVal {
			out[i] = e.ToNative()
		}
		return out
	case KindDict:
		out := make(map[string]interface{}, len(v.dictVal))
		for k, e := range v.dictVal {
			out[k] = e.ToNative()
		}
		return out
	case KindVariant:
		if v.variantOf == nil {
			return dbus.MakeVariant(nil)
		}
		return dbus.MakeVariant(v.variantOf.ToNative())
	case KindTuple:
		out := make([]interface{}, len(v.tupleVal))
		for i, e := range v.tupleVal {
			out[i] = e.ToNative()
		}
		return out
	default:
		return nil
	}
}

// ToVariant wraps ToNative in a dbus.Variant, ready for an a{sv} map entry.
// An array whose elements are all strings is wrapped as []string, so it
// goes on the wire with signature "as" rather than "av".
func (v Value) ToVariant() dbus.Variant {
	if v.kind == KindArray {
		strs := make([]string, 0, len(v.arrVal))
		for _, e := range v.arrVal {
			if e.kind != KindString {
				strs = nil
				break
			}
			strs = append(strs, e.strVal)
		}
		if strs != nil {
			return dbus.MakeVariant(strs)
		}
	}
	return dbus.MakeVariant(v.ToNative())
}

// ValuesToVariantMap converts a name->Value map into the a{sv} shape
// GetManagedObjects and PropertiesChanged both need.
func ValuesToVariantMap(values map[string]Value) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(values))
	for k, v := range values {
		out[k] = v.ToVariant()
	}
	return out
}

// FromVariant infers a Value's Kind from the Go type wrapped inside a
// dbus.Variant, for inbound method arguments and property Set calls.
func FromVariant(variant dbus.Variant) (Value, error) {
	return FromNative(variant.Value())
}

// FromNative converts a plain Go value (as produced by the godbus codec
// for an inbound method call) into a Value.
func FromNative(v interface{}) (Value, error) {
	switch t := v.(type) {
	case bool:
		return BoolValue(t), nil
	case byte:
		return ByteValue(t), nil
	case int16:
		return Int16Value(t), nil
	case uint16:
		return Uint16Value(t), nil
	case int32:
		return Int32Value(t), nil
	case uint32:
		return Uint32Value(t), nil
	case int64:
		return Int64Value(t), nil
	case uint64:
		return Uint64Value(t), nil
	case float64:
		return Float64Value(t), nil
	case string:
		return StringValue(t), nil
	case dbus.ObjectPath:
		p, err := NewObjectPath(string(t))
		if err != nil {
			return Value{}, err
		}
		return ObjectPathValue(p), nil
	case dbus.Signature:
		return SignatureValue(t.String()), nil
	case []byte:
		return BytesValue(t), nil
	case dbus.Variant:
		inner, err := FromVariant(t)
		if err != nil {
			return Value{}, err
		}
		return VariantValue(inner), nil
	case []interface{}:
		arr := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromNative(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = cv
		}
		return ArrayValue(arr), nil
	case map[string]dbus.Variant:
		dict := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromVariant(e)
			if err != nil {
				return Value{}, err
			}
			dict[k] = cv
		}
		return DictValue(dict), nil
	case map[string]interface{}:
		dict := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromNative(e)
			if err != nil {
				return Value{}, err
			}
			dict[k] = cv
		}
		return DictValue(dict), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported wire type %T", ErrInvalidArgument, v)
	}
}

// DecodeOptions turns an inbound a{sv} "options" argument (common to
// ReadValue/WriteValue) into name->Value form.
func DecodeOptions(options map[string]dbus.Variant) (map[string]Value, error) {
	out := make(map[string]Value, len(options))
	for k, v := range options {
		cv, err := FromVariant(v)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}
