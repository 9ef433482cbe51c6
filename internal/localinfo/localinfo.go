// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package localinfo supplies this node's own identity metadata, loaded once
// at startup from an Envoy bootstrap-style node section.
package localinfo

import (
	"fmt"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"sigs.k8s.io/yaml"
)

// Provider serves structured metadata values out of the local node's
// metadata. It is immutable after construction and safe for concurrent use.
type Provider struct {
	node *corev3.Node
}

// NewProvider wraps an already constructed node.
func NewProvider(node *corev3.Node) *Provider {
	return &Provider{node: node}
}

// LoadYAML parses a YAML node section (id, cluster, metadata) into a
// Provider. The section has the same shape as the node of an Envoy bootstrap.
func LoadYAML(raw []byte) (*Provider, error) {
	jsonRaw, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("cannot parse node section: %w", err)
	}
	node := &corev3.Node{}
	if err := protojson.Unmarshal(jsonRaw, node); err != nil {
		return nil, fmt.Errorf("cannot unmarshal node section: %w", err)
	}
	return &Provider{node: node}, nil
}

// Node returns the local node identity.
func (p *Provider) Node() *corev3.Node {
	return p.node
}

// Lookup returns the struct stored under key in the node metadata.
func (p *Provider) Lookup(key string) (*structpb.Struct, error) {
	fields := p.node.GetMetadata().GetFields()
	value, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("node metadata has no entry for key %q", key)
	}
	s := value.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("node metadata entry %q is not a struct", key)
	}
	return s, nil
}
