// Package wire implements the broker's binary wire contract: the Identifier
// codec, the per-command payload codecs, and the top-level command envelope.
// Nothing in this package touches domain state; it only converts between
// bytes and typed Go values.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/flowmq/flowmq/cmn/cos"
)

// IdentifierKind tags an Identifier's wire payload (protocol §3).
type IdentifierKind uint8

const (
	IdentifierNumeric IdentifierKind = 1
	IdentifierString  IdentifierKind = 2
)

// Identifier is a discriminated numeric-or-name resource handle. Zero value
// is invalid (Kind 0 is not assigned to either variant).
type Identifier struct {
	Kind IdentifierKind
	Num  uint32
	Str  string
}

// NumericIdentifier builds a numeric Identifier; numeric ids have no range
// restriction beyond fitting in 32 bits.
func NumericIdentifier(n uint32) Identifier {
	return Identifier{Kind: IdentifierNumeric, Num: n}
}

// StringIdentifier builds a name Identifier, validating the 1..255 byte
// length invariant from protocol §3.
func StringIdentifier(s string) (Identifier, error) {
	if len(s) < 1 || len(s) > 255 {
		return Identifier{}, cos.NewError(cos.KindInvalidCommand, "identifier name length %d out of range [1,255]", len(s))
	}
	return Identifier{Kind: IdentifierString, Str: s}, nil
}

// MustStringIdentifier panics on an invalid name; reserved for tests and
// literal construction of known-good constants.
func MustStringIdentifier(s string) Identifier {
	id, err := StringIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identifier) IsZero() bool { return id.Kind == 0 }

func (id Identifier) Equal(other Identifier) bool {
	if id.Kind != other.Kind {
		return false
	}
	if id.Kind == IdentifierNumeric {
		return id.Num == other.Num
	}
	return id.Str == other.Str
}

// Size returns the number of bytes this Identifier occupies on the wire:
// 2-byte header plus payload.
func (id Identifier) Size() int {
	if id.Kind == IdentifierNumeric {
		return 2 + 4
	}
	return 2 + len(id.Str)
}

// Encode writes the Identifier's wire form: kind:u8 || length:u8 || payload.
func (id Identifier) Encode() []byte {
	buf := make([]byte, id.Size())
	buf[0] = byte(id.Kind)
	if id.Kind == IdentifierNumeric {
		buf[1] = 4
		binary.LittleEndian.PutUint32(buf[2:6], id.Num)
		return buf
	}
	buf[1] = byte(len(id.Str))
	copy(buf[2:], id.Str)
	return buf
}

// DecodeIdentifier reads one Identifier from the front of buf and returns the
// number of bytes consumed, so callers can slice past it to read the next
// field (protocol §4.2: "the decoder consumes them ... advancing its cursor
// by the returned size").
func DecodeIdentifier(buf []byte) (Identifier, int, error) {
	if len(buf) < 2 {
		return Identifier{}, 0, errInvalidCommand("identifier: buffer shorter than 2-byte header")
	}
	kind := IdentifierKind(buf[0])
	length := int(buf[1])
	if length < 1 || length > 255 {
		return Identifier{}, 0, errInvalidCommand("identifier: length %d out of range [1,255]", length)
	}
	if len(buf) < 2+length {
		return Identifier{}, 0, errInvalidCommand("identifier: buffer too short for declared length %d", length)
	}
	switch kind {
	case IdentifierNumeric:
		if length != 4 {
			return Identifier{}, 0, errInvalidCommand("identifier: numeric length must be 4, got %d", length)
		}
		n := binary.LittleEndian.Uint32(buf[2:6])
		return Identifier{Kind: IdentifierNumeric, Num: n}, 6, nil
	case IdentifierString:
		s := string(buf[2 : 2+length])
		return Identifier{Kind: IdentifierString, Str: s}, 2 + length, nil
	default:
		return Identifier{}, 0, errInvalidCommand("identifier: unknown kind %d", kind)
	}
}

func (id Identifier) String() string {
	if id.Kind == IdentifierNumeric {
		return fmt.Sprintf("%d", id.Num)
	}
	return id.Str
}
