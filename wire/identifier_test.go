/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/flowmq/flowmq/cmn/cos"
)

func TestIdentifierRoundtripNumeric(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, n := range []uint32{0, 1, 255, 256, 1<<31 - 1, 1<<32 - 1, rnd.Uint32(), rnd.Uint32()} {
		id := NumericIdentifier(n)
		enc := id.Encode()
		if len(enc) != 6 || len(enc) != id.Size() {
			t.Fatalf("numeric identifier %d: encoded length %d, Size() %d", n, len(enc), id.Size())
		}
		dec, consumed, err := DecodeIdentifier(enc)
		if err != nil {
			t.Fatalf("numeric identifier %d: decode: %v", n, err)
		}
		if consumed != 6 || !dec.Equal(id) {
			t.Fatalf("numeric identifier %d: roundtrip mismatch: %+v (consumed %d)", n, dec, consumed)
		}
	}
}

func TestIdentifierRoundtripString(t *testing.T) {
	rnd := rand.New(rand.NewSource(43))
	for _, n := range []int{1, 2, 7, 100, 254, 255} {
		raw := make([]byte, n)
		rnd.Read(raw) // the wire is kind-tagged, not UTF-8-validated
		id, err := StringIdentifier(string(raw))
		if err != nil {
			t.Fatalf("string identifier len %d: %v", n, err)
		}
		enc := id.Encode()
		if len(enc) != 2+n || len(enc) != id.Size() {
			t.Fatalf("string identifier len %d: encoded length %d", n, len(enc))
		}
		dec, consumed, err := DecodeIdentifier(enc)
		if err != nil {
			t.Fatalf("string identifier len %d: decode: %v", n, err)
		}
		if consumed != 2+n || !dec.Equal(id) {
			t.Fatalf("string identifier len %d: roundtrip mismatch", n)
		}
	}
}

func TestStringIdentifierLengthBounds(t *testing.T) {
	if _, err := StringIdentifier(""); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := StringIdentifier(string(make([]byte, 256))); err == nil {
		t.Fatal("256-byte name accepted")
	}
}

func TestIdentifierDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"one byte", []byte{1}},
		{"zero length", []byte{1, 0}},
		{"numeric wrong length", []byte{1, 3, 0, 0, 0}},
		{"numeric truncated", []byte{1, 4, 0, 0, 0}},
		{"string truncated", []byte{2, 5, 'a', 'b'}},
		{"unknown kind", []byte{9, 4, 0, 0, 0, 0}},
	}
	for _, tc := range tests {
		_, _, err := DecodeIdentifier(tc.buf)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !cos.IsKind(err, cos.KindInvalidCommand) {
			t.Fatalf("%s: expected InvalidCommand, got %v", tc.name, err)
		}
	}
}

func TestIdentifierTruncationByOne(t *testing.T) {
	ids := []Identifier{
		NumericIdentifier(7),
		MustStringIdentifier("orders"),
		MustStringIdentifier("x"),
	}
	for _, id := range ids {
		enc := id.Encode()
		if _, _, err := DecodeIdentifier(enc[:len(enc)-1]); !cos.IsKind(err, cos.KindInvalidCommand) {
			t.Fatalf("identifier %s: truncated decode: got %v, want InvalidCommand", id, err)
		}
	}
}

func TestIdentifierKnownBytes(t *testing.T) {
	want := []byte{0x01, 0x04, 0x2a, 0x00, 0x00, 0x00}
	if got := NumericIdentifier(42).Encode(); !bytes.Equal(got, want) {
		t.Fatalf("numeric 42: got % x, want % x", got, want)
	}
	want = []byte{0x02, 0x02, 'h', 'i'}
	if got := MustStringIdentifier("hi").Encode(); !bytes.Equal(got, want) {
		t.Fatalf("string hi: got % x, want % x", got, want)
	}
}

func TestIdentifierEqual(t *testing.T) {
	if NumericIdentifier(1).Equal(MustStringIdentifier("1")) {
		t.Fatal("numeric 1 and string \"1\" must differ")
	}
	if !NumericIdentifier(5).Equal(NumericIdentifier(5)) {
		t.Fatal("equal numerics reported unequal")
	}
	if MustStringIdentifier("A").Equal(MustStringIdentifier("a")) {
		t.Fatal("identifiers are case-sensitive")
	}
}
