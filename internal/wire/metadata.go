// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// structTypeURL is the only envelope kind a peer is allowed to send.
const structTypeURL = "type.googleapis.com/google.protobuf.Struct"

// EncodeMetadata serializes the metadata struct into a self-describing
// envelope (google.protobuf.Any wrapping google.protobuf.Struct) so the
// receiver can validate the kind before trusting the contents. The marshal is
// deterministic so the header's declared length always matches the bytes on
// the wire.
func EncodeMetadata(value *structpb.Struct) ([]byte, error) {
	envelope, err := anypb.New(value)
	if err != nil {
		return nil, fmt.Errorf("cannot wrap metadata struct: %w", err)
	}
	payload, err := proto.MarshalOptions{Deterministic: true}.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal metadata envelope: %w", err)
	}
	return payload, nil
}

// DecodeMetadata parses a metadata payload previously produced by
// EncodeMetadata. Envelopes carrying any other message kind are rejected
// rather than best-effort parsed.
func DecodeMetadata(payload []byte) (*structpb.Struct, error) {
	var envelope anypb.Any
	if err := proto.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("cannot unmarshal metadata envelope: %w", err)
	}
	if envelope.TypeUrl != structTypeURL {
		return nil, fmt.Errorf("unexpected metadata envelope type %q, expected %q", envelope.TypeUrl, structTypeURL)
	}
	value := &structpb.Struct{}
	if err := envelope.UnmarshalTo(value); err != nil {
		return nil, fmt.Errorf("cannot unmarshal metadata struct: %w", err)
	}
	return value, nil
}
