// Package wire implements the self-describing byte encoding used to store
// values inside a pool's shared-memory segment.
//
// Values handed to the store are opaque Go values (bool, integer, float,
// string, []byte, slices, maps, or anything else). [Value] is the tagged tree
// form the compact codec understands; anything that cannot be expressed as a
// Value falls back to the host-native JSON codec.
package wire

import (
	"fmt"
	"sort"
)

// Kind tags the dynamic type of a [Value].
type Kind uint8

// Value kinds, one per primitive the compact format can represent.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindSeq
	KindMap
)

// Value is a tagged union mirroring the dynamic values a pool record can
// hold. Exactly one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Float  float64
	String string
	Bytes  []byte
	Seq    []Value
	// Map is stored as parallel slices rather than a Go map so that the
	// encoded key order is fixed: FromAny fills them in sorted key order,
	// and ToAny turns them back into a Go map, which has no order.
	MapKeys []string
	MapVals []Value
}

// Null is the zero Value.
var Null = Value{Kind: KindNull}

// FromAny converts an opaque Go value into a [Value] tree.
//
// ok is false when v contains a type the compact format cannot represent
// (the caller should fall back to the host-native codec in that case).
func FromAny(v any) (Value, bool) {
	switch t := v.(type) {
	case nil:
		return Null, true
	case bool:
		return Value{Kind: KindBool, Bool: t}, true
	case int:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case int8:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case int16:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case int32:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case int64:
		return Value{Kind: KindInt, Int: t}, true
	case uint:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case uint8:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case uint16:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case uint32:
		return Value{Kind: KindInt, Int: int64(t)}, true
	case float32:
		return Value{Kind: KindFloat, Float: float64(t)}, true
	case float64:
		return Value{Kind: KindFloat, Float: t}, true
	case string:
		return Value{Kind: KindString, String: t}, true
	case []byte:
		cp := append([]byte(nil), t...)
		return Value{Kind: KindBytes, Bytes: cp}, true
	case []any:
		seq := make([]Value, 0, len(t))

		for _, item := range t {
			sv, ok := FromAny(item)
			if !ok {
				return Value{}, false
			}

			seq = append(seq, sv)
		}

		return Value{Kind: KindSeq, Seq: seq}, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		vals := make([]Value, 0, len(keys))

		for _, k := range keys {
			mv, ok := FromAny(t[k])
			if !ok {
				return Value{}, false
			}

			vals = append(vals, mv)
		}

		return Value{Kind: KindMap, MapKeys: keys, MapVals: vals}, true
	default:
		return Value{}, false
	}
}

// ToAny converts a [Value] tree back into opaque Go values using the same
// shapes [FromAny] accepts (map[string]any, []any, string, int64, float64,
// bool, []byte, or nil).
func ToAny(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.String
	case KindBytes:
		return append([]byte(nil), v.Bytes...)
	case KindSeq:
		out := make([]any, len(v.Seq))
		for i, item := range v.Seq {
			out[i] = ToAny(item)
		}

		return out
	case KindMap:
		out := make(map[string]any, len(v.MapKeys))
		for i, k := range v.MapKeys {
			out[k] = ToAny(v.MapVals[i])
		}

		return out
	default:
		panic(fmt.Sprintf("wire: unknown kind %d", v.Kind))
	}
}
