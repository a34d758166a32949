package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCodecRoundTripCompact(t *testing.T) {
	c := NewCodec(DefaultCompressThreshold)

	cases := []any{
		nil,
		true,
		false,
		int64(42),
		3.14,
		"hello",
		[]byte("raw bytes"),
		[]any{int64(1), int64(2), int64(3)},
		map[string]any{"a": int64(1), "b": int64(2)},
		map[string]any{"n": map[string]any{"p": "hunter2"}},
	}

	for _, v := range cases {
		encoded, err := c.Serialize(v)
		if err != nil {
			t.Fatalf("Serialize(%#v): %v", v, err)
		}

		got, err := c.Deserialize(encoded)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}

		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("round trip mismatch for %#v (-want +got):\n%s", v, diff)
		}
	}
}

func TestCodecEmptyInputDecodesToNil(t *testing.T) {
	c := NewCodec(DefaultCompressThreshold)

	got, err := c.Deserialize(nil)
	if err != nil {
		t.Fatalf("Deserialize(nil): %v", err)
	}

	if got != nil {
		t.Fatalf("want nil, got %#v", got)
	}
}

func TestCodecFallbackForUnrepresentableTypes(t *testing.T) {
	type custom struct {
		Name string `json:"name"`
	}

	c := NewCodec(DefaultCompressThreshold)

	encoded, err := c.Serialize(custom{Name: "x"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if encoded[0]&formatMask != formatFallback {
		t.Fatalf("want fallback format tag, got 0x%x", encoded[0])
	}

	got, err := c.Deserialize(encoded)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("want map[string]any, got %T", got)
	}

	if m["name"] != "x" {
		t.Fatalf("want name=x, got %#v", m)
	}
}

func TestCodecCompressionThresholdBoundary(t *testing.T) {
	c := NewCodec(DefaultCompressThreshold)

	// The threshold applies to the encoded payload: one tag byte, a 2-byte
	// length varint, then the string bytes. 1021 chars encode to exactly
	// 1024 bytes, 1022 chars to 1025.
	atThreshold := strings.Repeat("a", DefaultCompressThreshold-3)
	encoded, err := c.Serialize(atThreshold)
	if err != nil {
		t.Fatal(err)
	}

	if encoded[0]&compressedFlag != 0 {
		t.Fatalf("payload at threshold must not be compressed")
	}

	overThreshold := strings.Repeat("a", DefaultCompressThreshold-2)
	encoded, err = c.Serialize(overThreshold)
	if err != nil {
		t.Fatal(err)
	}

	if encoded[0]&compressedFlag == 0 {
		t.Fatalf("highly compressible payload over threshold should compress")
	}
}

func TestCodecCompressionDiscardedWhenNotSmaller(t *testing.T) {
	c := NewCodec(4)

	// "abc" encodes to 5 bytes (tag, length, 3 chars), over the threshold
	// of 4, so compression is attempted; DEFLATE output plus its own
	// overhead will not be smaller than the raw bytes.
	encoded, err := c.Serialize("abc")
	if err != nil {
		t.Fatal(err)
	}

	if encoded[0]&compressedFlag != 0 {
		t.Fatalf("tiny payload must not end up compressed")
	}
}

func TestCodecDisableCompression(t *testing.T) {
	c := NewCodec(DisableCompression)

	encoded, err := c.Serialize(strings.Repeat("a", 10000))
	if err != nil {
		t.Fatal(err)
	}

	if encoded[0]&compressedFlag != 0 {
		t.Fatalf("compression must be disabled")
	}
}

func TestCodecDecodeMalformedReturnsErrDecode(t *testing.T) {
	c := NewCodec(DefaultCompressThreshold)

	_, err := c.Deserialize([]byte{formatCompact, byte(nodeSeq), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("want ErrDecode for malformed seq count, got %v", err)
	}
}
