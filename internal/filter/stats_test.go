// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package filter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatsPartitionedByPrefix(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	inbound := m.NewStats("inbound")
	outbound := m.NewStats("outbound")

	inbound.MetadataAdded.Inc()
	inbound.MetadataAdded.Inc()
	outbound.AlpnProtocolFound.Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(inbound.MetadataAdded))
	require.Equal(t, float64(0), testutil.ToFloat64(outbound.MetadataAdded))
	require.Equal(t, float64(1), testutil.ToFloat64(outbound.AlpnProtocolFound))
}

func TestMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	// Two configs against the same registry share the collectors.
	require.NotNil(t, m.NewStats("a"))
	require.NotNil(t, m.NewStats("b"))
	require.Panics(t, func() { NewMetrics(registry) })
}
