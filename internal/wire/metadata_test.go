// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMetadataRoundTrip(t *testing.T) {
	value, err := structpb.NewStruct(map[string]any{
		"workload": "reviews-v2",
		"owner":    "kubernetes://apis/apps/v1/namespaces/default/deployments/reviews-v2",
		"ports":    []any{float64(8080), float64(15090)},
	})
	require.NoError(t, err)

	payload, err := EncodeMetadata(value)
	require.NoError(t, err)

	decoded, err := DecodeMetadata(payload)
	require.NoError(t, err)
	require.True(t, proto.Equal(value, decoded))
}

func TestDecodeMetadataRejectsWrongEnvelopeKind(t *testing.T) {
	envelope, err := anypb.New(wrapperspb.String("not a struct"))
	require.NoError(t, err)
	payload, err := proto.Marshal(envelope)
	require.NoError(t, err)

	_, err = DecodeMetadata(payload)
	require.ErrorContains(t, err, "unexpected metadata envelope type")
}

func TestDecodeMetadataRejectsGarbage(t *testing.T) {
	_, err := DecodeMetadata([]byte("\xff\xff\xff\xffgarbage"))
	require.ErrorContains(t, err, "cannot unmarshal metadata envelope")
}

func TestDecodeMetadataEmptyPayload(t *testing.T) {
	// An empty Any has an empty type URL, which is not a Struct envelope.
	_, err := DecodeMetadata(nil)
	require.ErrorContains(t, err, "unexpected metadata envelope type")
}
