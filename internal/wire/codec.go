package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// errDecode is returned by decodeValue on any malformed input. Internal to
// the package: callers only ever see it wrapped in [ErrDecode] or
// translated to "empty" by the store's torn-read handling.
var errDecode = errors.New("wire: malformed compact value")

// Node tags for the compact tree encoding. One byte per node, no separate
// framing: the top-level framing byte (format + compression) is written by
// [Codec.Serialize], not here.
const (
	nodeNull byte = iota
	nodeFalse
	nodeTrue
	nodeInt
	nodeFloat
	nodeString
	nodeBytes
	nodeSeq
	nodeMap
)

// encodeValue appends the compact encoding of v to dst.
func encodeValue(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return append(dst, nodeNull)
	case KindBool:
		if v.Bool {
			return append(dst, nodeTrue)
		}

		return append(dst, nodeFalse)
	case KindInt:
		dst = append(dst, nodeInt)

		var buf [binary.MaxVarintLen64]byte

		n := binary.PutVarint(buf[:], v.Int)

		return append(dst, buf[:n]...)
	case KindFloat:
		dst = append(dst, nodeFloat)

		var buf [8]byte

		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float))

		return append(dst, buf[:]...)
	case KindString:
		dst = append(dst, nodeString)
		dst = appendUvarint(dst, uint64(len(v.String)))

		return append(dst, v.String...)
	case KindBytes:
		dst = append(dst, nodeBytes)
		dst = appendUvarint(dst, uint64(len(v.Bytes)))

		return append(dst, v.Bytes...)
	case KindSeq:
		dst = append(dst, nodeSeq)
		dst = appendUvarint(dst, uint64(len(v.Seq)))

		for _, item := range v.Seq {
			dst = encodeValue(dst, item)
		}

		return dst
	case KindMap:
		dst = append(dst, nodeMap)
		dst = appendUvarint(dst, uint64(len(v.MapKeys)))

		for i, k := range v.MapKeys {
			dst = appendUvarint(dst, uint64(len(k)))
			dst = append(dst, k...)
			dst = encodeValue(dst, v.MapVals[i])
		}

		return dst
	default:
		return append(dst, nodeNull)
	}
}

// decodeValue reads one Value from the front of src, returning the value and
// the number of bytes consumed.
func decodeValue(src []byte) (Value, int, error) {
	if len(src) == 0 {
		return Value{}, 0, errDecode
	}

	tag := src[0]
	rest := src[1:]
	consumed := 1

	switch tag {
	case nodeNull:
		return Null, consumed, nil
	case nodeFalse:
		return Value{Kind: KindBool, Bool: false}, consumed, nil
	case nodeTrue:
		return Value{Kind: KindBool, Bool: true}, consumed, nil
	case nodeInt:
		i, n := binary.Varint(rest)
		if n <= 0 {
			return Value{}, 0, errDecode
		}

		return Value{Kind: KindInt, Int: i}, consumed + n, nil
	case nodeFloat:
		if len(rest) < 8 {
			return Value{}, 0, errDecode
		}

		bits := binary.LittleEndian.Uint64(rest[:8])

		return Value{Kind: KindFloat, Float: math.Float64frombits(bits)}, consumed + 8, nil
	case nodeString:
		strLen, n, err := readUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}

		rest = rest[n:]
		consumed += n

		if uint64(len(rest)) < strLen {
			return Value{}, 0, errDecode
		}

		s := string(rest[:strLen])

		return Value{Kind: KindString, String: s}, consumed + int(strLen), nil
	case nodeBytes:
		byteLen, n, err := readUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}

		rest = rest[n:]
		consumed += n

		if uint64(len(rest)) < byteLen {
			return Value{}, 0, errDecode
		}

		b := append([]byte(nil), rest[:byteLen]...)

		return Value{Kind: KindBytes, Bytes: b}, consumed + int(byteLen), nil
	case nodeSeq:
		count, n, err := readUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}

		rest = rest[n:]
		consumed += n

		seq := make([]Value, 0, count)

		for range count {
			item, itemLen, err := decodeValue(rest)
			if err != nil {
				return Value{}, 0, err
			}

			seq = append(seq, item)
			rest = rest[itemLen:]
			consumed += itemLen
		}

		return Value{Kind: KindSeq, Seq: seq}, consumed, nil
	case nodeMap:
		count, n, err := readUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}

		rest = rest[n:]
		consumed += n

		keys := make([]string, 0, count)
		vals := make([]Value, 0, count)

		for range count {
			keyLen, n, err := readUvarint(rest)
			if err != nil {
				return Value{}, 0, err
			}

			rest = rest[n:]
			consumed += n

			if uint64(len(rest)) < keyLen {
				return Value{}, 0, errDecode
			}

			key := string(rest[:keyLen])
			rest = rest[keyLen:]
			consumed += int(keyLen)

			val, valLen, err := decodeValue(rest)
			if err != nil {
				return Value{}, 0, err
			}

			rest = rest[valLen:]
			consumed += valLen

			keys = append(keys, key)
			vals = append(vals, val)
		}

		return Value{Kind: KindMap, MapKeys: keys, MapVals: vals}, consumed, nil
	default:
		return Value{}, 0, errDecode
	}
}

func appendUvarint(dst []byte, x uint64) []byte {
	var buf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(buf[:], x)

	return append(dst, buf[:n]...)
}

func readUvarint(src []byte) (uint64, int, error) {
	x, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, 0, errDecode
	}

	return x, n, nil
}
