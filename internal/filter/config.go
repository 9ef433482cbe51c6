// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package filter implements the per-connection metadata exchange filter: it
// injects this node's identity frame into the outbound stream once, strips
// the peer's frame from the inbound stream, and publishes the decoded peer
// metadata for other components on the connection to read.
package filter

import (
	"log/slog"

	"github.com/envoyproxy/tcp-metadata-exchange/internal/dynmeta"
	"github.com/envoyproxy/tcp-metadata-exchange/internal/localinfo"
)

// Direction describes on which side of the connection a filter instance sits.
type Direction int

const (
	// DirectionDownstream means this side accepted the connection.
	DirectionDownstream Direction = iota
	// DirectionUpstream means this side initiated the connection.
	DirectionUpstream
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DirectionUpstream {
		return "upstream"
	}
	return "downstream"
}

// Dynamic metadata namespaces under which decoded peer metadata is published.
const (
	DownstreamMetadataNamespace = "filters.network.metadata_exchange.downstream"
	UpstreamMetadataNamespace   = "filters.network.metadata_exchange.upstream"
)

// Config is the immutable configuration shared by every filter instance
// created for one listener. It outlives all connections.
type Config struct {
	statPrefix       string
	expectedProtocol string
	localMetadataKey string
	direction        Direction
	stats            *Stats
	local            *localinfo.Provider
	logger           *slog.Logger
}

// NewConfig creates a filter configuration. expectedProtocol is the
// application protocol token that must have been negotiated for filters to
// participate; localMetadataKey selects this node's own metadata from the
// identity provider.
func NewConfig(statPrefix, expectedProtocol, localMetadataKey string, direction Direction,
	stats *Stats, local *localinfo.Provider, logger *slog.Logger,
) *Config {
	return &Config{
		statPrefix:       statPrefix,
		expectedProtocol: expectedProtocol,
		localMetadataKey: localMetadataKey,
		direction:        direction,
		stats:            stats,
		local:            local,
		logger: logger.With(
			slog.String("component", "metadata_exchange"),
			slog.String("direction", direction.String()),
		),
	}
}

// Direction returns which side of the connection filters of this config sit on.
func (c *Config) Direction() Direction {
	return c.direction
}

// MetadataNamespace returns the direction-qualified namespace this config's
// filters publish peer metadata under.
func (c *Config) MetadataNamespace() string {
	if c.direction == DirectionUpstream {
		return UpstreamMetadataNamespace
	}
	return DownstreamMetadataNamespace
}

// NewFilter creates one filter instance for a single connection. The host
// supplies the negotiated protocol; meta is the connection's dynamic metadata
// store. The returned filter must only be driven by that connection's
// callbacks and never shared.
func (c *Config) NewFilter(host Host, meta *dynmeta.Store) *Filter {
	return &Filter{cfg: c, host: host, meta: meta, state: stateNotNegotiated}
}
