// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package wire implements the byte-level encoding of the metadata exchange
// frame: a fixed-size header followed by a self-describing protobuf payload.
package wire

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// Magic identifies a metadata exchange frame header. It is a multi-byte
	// constant so arbitrary application data is rejected with high confidence.
	Magic uint32 = 0x3D23A064

	// HeaderSize is the fixed size of the frame header: the 4-byte magic
	// followed by the 4-byte big-endian payload length.
	HeaderSize = 8

	// MaxPayloadSize bounds the payload length a header may declare. A peer
	// metadata struct is small; anything above this is treated as a malformed
	// header rather than an invitation to buffer.
	MaxPayloadSize = 1 << 20
)

// EncodeHeader returns the frame header declaring payloadLength payload bytes.
func EncodeHeader(payloadLength uint32) []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(b[0:4], Magic)
	binary.BigEndian.PutUint32(b[4:8], payloadLength)
	return b
}

// DecodeHeader decodes a frame header from the first HeaderSize bytes of b.
// It never panics: short input or a wrong magic is reported as invalid.
func DecodeHeader(b []byte) (magicValid bool, payloadLength uint32) {
	if len(b) < HeaderSize {
		return false, 0
	}
	if binary.BigEndian.Uint32(b[0:4]) != Magic {
		return false, 0
	}
	return true, binary.BigEndian.Uint32(b[4:8])
}

// EncodeFrame serializes value and prepends the header declaring its exact
// encoded length.
func EncodeFrame(value *structpb.Struct) ([]byte, error) {
	payload, err := EncodeMetadata(value)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("metadata payload is %d bytes, exceeding the %d byte frame limit", len(payload), MaxPayloadSize)
	}
	return append(EncodeHeader(uint32(len(payload))), payload...), nil
}
