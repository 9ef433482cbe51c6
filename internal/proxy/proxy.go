// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package proxy is the host adapter for the metadata exchange filter: a TCP
// proxy that attaches one downstream-direction and one upstream-direction
// filter instance to every proxied connection and drives their callbacks from
// the socket event loop.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/envoyproxy/tcp-metadata-exchange/internal/dynmeta"
	"github.com/envoyproxy/tcp-metadata-exchange/internal/filter"
)

// Server proxies accepted TCP connections to a fixed upstream address.
type Server struct {
	downstream *filter.Config
	upstream   *filter.Config
	// upstreamAddress is the host:port every accepted connection is proxied to.
	upstreamAddress string
	// staticProtocol is the protocol token reported to the filters when the
	// listener does not terminate TLS. With TLS, the real ALPN result is used
	// and tlsConfig.NextProtos must offer the expected protocol.
	staticProtocol string
	tlsConfig      *tls.Config
	dialer         net.Dialer
	logger         *slog.Logger
}

// NewServer creates a proxy server. downstream and upstream are the filter
// configurations for the accepted and the dialed side of each proxied
// connection respectively; tlsConfig may be nil for a plaintext listener.
func NewServer(downstream, upstream *filter.Config, upstreamAddress, staticProtocol string,
	tlsConfig *tls.Config, logger *slog.Logger,
) *Server {
	return &Server{
		downstream:      downstream,
		upstream:        upstream,
		upstreamAddress: upstreamAddress,
		staticProtocol:  staticProtocol,
		tlsConfig:       tlsConfig,
		logger:          logger.With(slog.String("component", "proxy")),
	}
}

// ListenAndServe listens on address and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is canceled. It owns ln,
// closes it on return, and waits for in-flight connections to drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	var handlers sync.WaitGroup
	defer handlers.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			if err := s.handle(ctx, conn); err != nil {
				s.logger.Error("connection failed",
					slog.String("remote", conn.RemoteAddr().String()),
					slog.String("error", err.Error()))
			}
		}()
	}
}

// handle proxies one accepted connection. Filter failures never terminate the
// connection; only transport errors do.
func (s *Server) handle(ctx context.Context, downstreamConn net.Conn) error {
	defer downstreamConn.Close()

	negotiated := s.staticProtocol
	if s.tlsConfig != nil {
		tlsConn := tls.Server(downstreamConn, s.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("TLS handshake failed: %w", err)
		}
		negotiated = tlsConn.ConnectionState().NegotiatedProtocol
		downstreamConn = tlsConn
	}

	upstreamConn, err := s.dialer.DialContext(ctx, "tcp", s.upstreamAddress)
	if err != nil {
		return fmt.Errorf("cannot dial upstream %s: %w", s.upstreamAddress, err)
	}
	defer upstreamConn.Close()

	store := dynmeta.NewStore()
	host := protocolHost(negotiated)
	downstreamFilter := s.downstream.NewFilter(host, store)
	upstreamFilter := s.upstream.NewFilter(host, store)
	downstreamFilter.OnConnectionEstablished()
	upstreamFilter.OnConnectionEstablished()

	// First write opportunity on both sides, before any application bytes, so
	// each peer receives the local frame without waiting for traffic.
	if out := downstreamFilter.OnOutboundData(nil, false); len(out) > 0 {
		if _, err := downstreamConn.Write(out); err != nil {
			return fmt.Errorf("downstream write failed: %w", err)
		}
	}
	if out := upstreamFilter.OnOutboundData(nil, false); len(out) > 0 {
		if _, err := upstreamConn.Write(out); err != nil {
			return fmt.Errorf("upstream write failed: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-gctx.Done():
			downstreamConn.Close()
			upstreamConn.Close()
		case <-done:
		}
	}()

	g.Go(func() error {
		return pump(downstreamConn, upstreamConn, downstreamFilter.OnInboundData, upstreamFilter.OnOutboundData)
	})
	g.Go(func() error {
		return pump(upstreamConn, downstreamConn, upstreamFilter.OnInboundData, downstreamFilter.OnOutboundData)
	})
	err = g.Wait()

	s.logConnection(downstreamConn, store)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// logConnection attributes the finished connection to its peers using the
// metadata other components would read from the dynamic metadata store.
func (s *Server) logConnection(downstreamConn net.Conn, store *dynmeta.Store) {
	attrs := []any{slog.String("remote", downstreamConn.RemoteAddr().String())}
	if peer, ok := store.Get(filter.DownstreamMetadataNamespace); ok {
		attrs = append(attrs, slog.String("downstream_peer", peer.Fields["workload"].GetStringValue()))
	}
	if peer, ok := store.Get(filter.UpstreamMetadataNamespace); ok {
		attrs = append(attrs, slog.String("upstream_peer", peer.Fields["workload"].GetStringValue()))
	}
	s.logger.Debug("connection closed", attrs...)
}

// pump copies bytes from src to dst, passing every delivery through the
// filter callbacks of the two connection sides it crosses.
func pump(src, dst net.Conn, inbound, outbound func([]byte, bool) []byte) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		endOfStream := errors.Is(readErr, io.EOF)
		if n > 0 || endOfStream {
			forwarded := inbound(buf[:n], endOfStream)
			out := outbound(forwarded, endOfStream)
			if len(out) > 0 {
				if _, err := dst.Write(out); err != nil {
					if errors.Is(err, net.ErrClosed) {
						return nil
					}
					return fmt.Errorf("write failed: %w", err)
				}
			}
		}
		if readErr != nil {
			if endOfStream {
				halfCloseWrite(dst)
				return nil
			}
			if errors.Is(readErr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read failed: %w", readErr)
		}
	}
}

// halfCloseWrite propagates an EOF to the other side without tearing down
// the opposite direction.
func halfCloseWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}

// protocolHost reports a fixed negotiated protocol to the filters of one
// proxied connection. It implements [filter.Host].
type protocolHost string

// NegotiatedProtocol implements [filter.Host].
func (h protocolHost) NegotiatedProtocol() string { return string(h) }
