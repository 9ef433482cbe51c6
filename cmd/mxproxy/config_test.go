// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listenAddress: ":15001"
upstreamAddress: "127.0.0.1:8080"
node:
  id: node-1
  metadata:
    peer_metadata:
      workload: productpage-v1
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":15001", cfg.ListenAddress)
	require.Equal(t, "127.0.0.1:8080", cfg.UpstreamAddress)
	require.Equal(t, defaultStatPrefix, cfg.StatPrefix)
	require.Equal(t, defaultExpectedProtocol, cfg.ExpectedProtocol)
	require.Equal(t, defaultLocalMetadataKey, cfg.LocalMetadataKey)
	// Plaintext listeners default to participating.
	require.Equal(t, defaultExpectedProtocol, cfg.NegotiatedProtocol)
}

func TestLoadConfigTLSLeavesNegotiatedProtocolToALPN(t *testing.T) {
	path := writeConfig(t, `
listenAddress: ":15001"
upstreamAddress: "127.0.0.1:8080"
tls:
  certFile: /etc/certs/tls.crt
  keyFile: /etc/certs/tls.key
node:
  id: node-1
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Empty(t, cfg.NegotiatedProtocol)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing listen address",
			content: "upstreamAddress: \"127.0.0.1:8080\"\nnode: {id: n}\n",
			wantErr: "listenAddress is required",
		},
		{
			name:    "missing upstream address",
			content: "listenAddress: \":15001\"\nnode: {id: n}\n",
			wantErr: "upstreamAddress is required",
		},
		{
			name:    "missing node",
			content: "listenAddress: \":15001\"\nupstreamAddress: \"127.0.0.1:8080\"\n",
			wantErr: "node is required",
		},
		{
			name: "incomplete tls",
			content: `
listenAddress: ":15001"
upstreamAddress: "127.0.0.1:8080"
tls:
  certFile: /etc/certs/tls.crt
node: {id: n}
`,
			wantErr: "tls requires both certFile and keyFile",
		},
		{
			name:    "not yaml",
			content: "\tlisten",
			wantErr: "cannot parse config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.content))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "cannot read config file")
}
