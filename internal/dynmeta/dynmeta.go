// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package dynmeta provides the per-connection dynamic metadata store through
// which filters attached to the same connection share structured values.
package dynmeta

import (
	"sync"

	"google.golang.org/protobuf/types/known/structpb"
)

// Store maps a namespace to a structured value. One Store exists per proxied
// connection and lives exactly as long as it; it is never shared across
// connections.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*structpb.Struct
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*structpb.Struct)}
}

// Set records value under namespace, replacing any previous entry.
func (s *Store) Set(namespace string, value *structpb.Struct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[namespace] = value
}

// Get returns the value recorded under namespace, if any.
func (s *Store) Get(namespace string) (*structpb.Struct, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[namespace]
	return v, ok
}
