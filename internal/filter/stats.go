// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package filter

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors shared by every filter config
// registered against the same registry. Counters are partitioned by the
// config's stat prefix.
type Metrics struct {
	alpnProtocolNotFound  *prometheus.CounterVec
	alpnProtocolFound     *prometheus.CounterVec
	initialHeaderNotFound *prometheus.CounterVec
	headerNotFound        *prometheus.CounterVec
	metadataAdded         *prometheus.CounterVec
}

// NewMetrics creates and registers the metadata exchange collectors.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metadata_exchange_" + name,
			Help: help,
		}, []string{"stat_prefix"})
	}
	m := &Metrics{
		alpnProtocolNotFound:  counter("alpn_protocol_not_found", "Connections whose negotiated application protocol did not match the expected token."),
		alpnProtocolFound:     counter("alpn_protocol_found", "Connections whose negotiated application protocol matched the expected token."),
		initialHeaderNotFound: counter("initial_header_not_found", "Connections whose first inbound bytes did not carry a valid frame header."),
		headerNotFound:        counter("header_not_found", "Connections whose frame payload could not be decoded."),
		metadataAdded:         counter("metadata_added", "Connections for which peer metadata was decoded and published."),
	}
	registry.MustRegister(
		m.alpnProtocolNotFound,
		m.alpnProtocolFound,
		m.initialHeaderNotFound,
		m.headerNotFound,
		m.metadataAdded,
	)
	return m
}

// Stats is the per-config view of the counters, resolved to one stat prefix.
// Increments are safe under concurrent use from many connections.
type Stats struct {
	AlpnProtocolNotFound  prometheus.Counter
	AlpnProtocolFound     prometheus.Counter
	InitialHeaderNotFound prometheus.Counter
	HeaderNotFound        prometheus.Counter
	MetadataAdded         prometheus.Counter
}

// NewStats resolves the collectors to the given stat prefix.
func (m *Metrics) NewStats(statPrefix string) *Stats {
	return &Stats{
		AlpnProtocolNotFound:  m.alpnProtocolNotFound.WithLabelValues(statPrefix),
		AlpnProtocolFound:     m.alpnProtocolFound.WithLabelValues(statPrefix),
		InitialHeaderNotFound: m.initialHeaderNotFound.WithLabelValues(statPrefix),
		HeaderNotFound:        m.headerNotFound.WithLabelValues(statPrefix),
		MetadataAdded:         m.metadataAdded.WithLabelValues(statPrefix),
	}
}
