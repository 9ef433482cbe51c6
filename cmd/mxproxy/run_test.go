// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunInvalidConfig(t *testing.T) {
	err := run(context.Background(), cmdRun{Config: "/does/not/exist.yaml"}, io.Discard, io.Discard)
	require.ErrorContains(t, err, "cannot read config file")
}

func TestRunInvalidNode(t *testing.T) {
	path := writeConfig(t, `
listenAddress: "127.0.0.1:0"
upstreamAddress: "127.0.0.1:8080"
node:
  id: [not, a, string]
`)
	err := run(context.Background(), cmdRun{Config: path}, io.Discard, io.Discard)
	require.ErrorContains(t, err, "cannot unmarshal node section")
}

func TestRunStartsAndStops(t *testing.T) {
	path := writeConfig(t, `
listenAddress: "127.0.0.1:0"
upstreamAddress: "127.0.0.1:8080"
adminAddress: "127.0.0.1:0"
node:
  id: node-1
  metadata:
    peer_metadata:
      workload: productpage-v1
`)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cmdRun{Config: path}, io.Discard, io.Discard)
	}()

	// Give the listeners a moment to come up, then shut down cleanly.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}
