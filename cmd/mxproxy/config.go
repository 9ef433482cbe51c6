// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

const (
	defaultStatPrefix       = "mx"
	defaultExpectedProtocol = "mx-peer-exchange"
	defaultLocalMetadataKey = "peer_metadata"
)

// proxyConfig is the yaml configuration of the proxy.
type proxyConfig struct {
	// ListenAddress is the address downstream connections are accepted on.
	ListenAddress string `json:"listenAddress"`
	// UpstreamAddress is where every accepted connection is proxied to.
	UpstreamAddress string `json:"upstreamAddress"`
	// AdminAddress serves /metrics and /healthz when set.
	AdminAddress string `json:"adminAddress,omitempty"`
	// StatPrefix namespaces the exchange counters.
	StatPrefix string `json:"statPrefix,omitempty"`
	// ExpectedProtocol is the application protocol token that must have been
	// negotiated for the exchange to take place.
	ExpectedProtocol string `json:"expectedProtocol,omitempty"`
	// LocalMetadataKey selects this node's own metadata from the node section.
	LocalMetadataKey string `json:"localMetadataKey,omitempty"`
	// NegotiatedProtocol is reported to the filters on plaintext listeners,
	// where no ALPN takes place. Defaults to ExpectedProtocol so plain TCP
	// deployments participate. Ignored when TLS is configured.
	NegotiatedProtocol string `json:"negotiatedProtocol,omitempty"`
	// TLS enables TLS termination on the listener; the negotiated protocol is
	// then the real ALPN result.
	TLS *tlsSettings `json:"tls,omitempty"`
	// Node is this node's identity: id, cluster and metadata, shaped like the
	// node section of an Envoy bootstrap.
	Node json.RawMessage `json:"node"`
}

type tlsSettings struct {
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
}

// loadConfig reads, parses, validates and defaults the configuration at path.
func loadConfig(path string) (*proxyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	var cfg proxyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if cfg.ListenAddress == "" {
		return nil, errors.New("listenAddress is required")
	}
	if cfg.UpstreamAddress == "" {
		return nil, errors.New("upstreamAddress is required")
	}
	if len(cfg.Node) == 0 {
		return nil, errors.New("node is required")
	}
	if cfg.TLS != nil && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return nil, errors.New("tls requires both certFile and keyFile")
	}
	if cfg.StatPrefix == "" {
		cfg.StatPrefix = defaultStatPrefix
	}
	if cfg.ExpectedProtocol == "" {
		cfg.ExpectedProtocol = defaultExpectedProtocol
	}
	if cfg.LocalMetadataKey == "" {
		cfg.LocalMetadataKey = defaultLocalMetadataKey
	}
	if cfg.NegotiatedProtocol == "" && cfg.TLS == nil {
		cfg.NegotiatedProtocol = cfg.ExpectedProtocol
	}
	return &cfg, nil
}
