package wire

import (
	"bytes"
	"errors"
	"fmt"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/klauspost/compress/flate"
)

// Format tags occupy the low nibble of the framing byte.
const (
	formatCompact  byte = 0x01
	formatFallback byte = 0x02

	compressedFlag byte = 0x80
	formatMask     byte = 0x0f
)

// ErrDecode indicates a serialized blob could not be decoded. Per spec this
// is never surfaced from a user-facing read: the store degrades such
// failures to "absent"/"empty map" instead.
var ErrDecode = errors.New("wire: decode failed")

// DisableCompression is the sentinel compress_threshold value that turns
// compression off entirely.
const DisableCompression = -1

// DefaultCompressThreshold is the byte size above which Serialize attempts
// DEFLATE compression of the raw payload.
const DefaultCompressThreshold = 1024

// Codec converts opaque values to/from the framed byte representation stored
// in a pool record.
//
// A Codec is immutable after construction and safe for concurrent use by
// multiple goroutines and processes (it only inspects the bytes handed to
// it). This is the dependency-injected replacement for the mutable
// process-wide serializer in the original design: each pool's store
// constructs its own Codec and uses it for every read and write.
type Codec struct {
	compressThreshold int
}

// NewCodec builds a Codec with the given compress_threshold. A threshold < 0
// other than [DisableCompression] is treated as [DisableCompression].
func NewCodec(compressThreshold int) *Codec {
	if compressThreshold < 0 {
		compressThreshold = DisableCompression
	}

	return &Codec{compressThreshold: compressThreshold}
}

// Serialize encodes v into the framed byte representation.
//
// Serialize never fails for values [FromAny] accepts. For anything else it
// transparently falls back to the host-native (JSON) format.
func (c *Codec) Serialize(v any) ([]byte, error) {
	var (
		raw    []byte
		format byte
	)

	if val, ok := FromAny(v); ok {
		raw = encodeValue(nil, val)
		format = formatCompact
	} else {
		encoded, err := jsonv2.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("wire: fallback json encode: %w", err)
		}

		raw = encoded
		format = formatFallback
	}

	header := format
	payload := raw

	if c.compressThreshold != DisableCompression && len(raw) > c.compressThreshold {
		compressed, err := deflate(raw)
		if err == nil && len(compressed) < len(raw) {
			payload = compressed
			header |= compressedFlag
		}
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, header)
	out = append(out, payload...)

	return out, nil
}

// Deserialize decodes a framed byte blob produced by [Codec.Serialize].
//
// An empty input decodes to nil (the empty value).
func (c *Codec) Deserialize(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	header := data[0]
	payload := data[1:]

	if header&compressedFlag != 0 {
		inflated, err := inflate(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrDecode, err) //nolint:errorlint // wrapping sentinel by design
		}

		payload = inflated
	}

	switch header & formatMask {
	case formatCompact:
		val, n, err := decodeValue(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err) //nolint:errorlint // wrapping sentinel by design
		}

		if n != len(payload) {
			return nil, fmt.Errorf("%w: trailing bytes", ErrDecode)
		}

		return ToAny(val), nil
	case formatFallback:
		var v any

		if err := jsonv2.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("%w: json decode: %v", ErrDecode, err) //nolint:errorlint // wrapping sentinel by design
		}

		return v, nil
	default:
		return nil, fmt.Errorf("%w: unknown format tag 0x%x", ErrDecode, header&formatMask)
	}
}

// deflate compresses data at the fastest DEFLATE level.
func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// inflate decompresses a DEFLATE stream produced by deflate.
func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
