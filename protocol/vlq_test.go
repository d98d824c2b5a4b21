package protocol

import (
	"bytes"
	"testing"
)

func TestVLQIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 31, -32, 95, 96, 127, -127, 4095, -4096, 1000000, -1000000, 1<<31 - 1, -1 << 31}

	for _, want := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, want)
		encoded := out.Result()

		data := encoded
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("decode %d: %v", want, err)
			continue
		}
		if got != want {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as %v)", want, got, encoded)
		}
		if len(data) != 0 {
			t.Errorf("decode %d left %d bytes", want, len(data))
		}
	}
}

func TestVLQSingleByteRange(t *testing.T) {
	for _, v := range []int32{-32, 0, 95} {
		if n := len(encodeInt(v)); n != 1 {
			t.Errorf("value %d encoded to %d bytes, expected 1", v, n)
		}
	}
	for _, v := range []int32{-33, 96} {
		if n := len(encodeInt(v)); n != 2 {
			t.Errorf("value %d encoded to %d bytes, expected 2", v, n)
		}
	}
}

func encodeInt(v int32) []byte {
	out := NewScratchOutput()
	EncodeVLQInt(out, v)
	return append([]byte(nil), out.Result()...)
}

func TestVLQUintRoundTrip(t *testing.T) {
	for _, want := range []uint32{0, 1, 127, 128, 255, 65535, 4000000, 0xFFFFFFFF} {
		out := NewScratchOutput()
		EncodeVLQUint(out, want)
		data := out.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != want {
			t.Errorf("uint %d: got %d, err %v", want, got, err)
		}
	}
}

func TestVLQBytesAndString(t *testing.T) {
	out := NewScratchOutput()
	EncodeVLQBytes(out, []byte{0xFF, 0x00, 0xAB})
	EncodeVLQString(out, "spi0")
	EncodeVLQBytes(out, nil)
	data := out.Result()

	b, err := DecodeVLQBytes(&data)
	if err != nil || !bytes.Equal(b, []byte{0xFF, 0x00, 0xAB}) {
		t.Fatalf("bytes: got %v, err %v", b, err)
	}
	s, err := DecodeVLQString(&data)
	if err != nil || s != "spi0" {
		t.Fatalf("string: got %q, err %v", s, err)
	}
	empty, err := DecodeVLQBytes(&data)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty: got %v, err %v", empty, err)
	}
	if len(data) != 0 {
		t.Errorf("%d trailing bytes", len(data))
	}
}

func TestVLQDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrBufferTooSmall},
		{"truncated continuation", []byte{0x80}, ErrBufferTooSmall},
		{"too many continuation bytes", []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}, ErrInvalidVLQ},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if _, err := DecodeVLQInt(&data); err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	data := []byte{0x05, 0x01}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("short byte array: expected ErrBufferTooSmall, got %v", err)
	}
}
