// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/envoyproxy/tcp-metadata-exchange/internal/filter"
	"github.com/envoyproxy/tcp-metadata-exchange/internal/localinfo"
	"github.com/envoyproxy/tcp-metadata-exchange/internal/proxy"
)

func run(ctx context.Context, c cmdRun, _, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{}))

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	provider, err := localinfo.LoadYAML(cfg.Node)
	if err != nil {
		return err
	}
	if _, err := provider.Lookup(cfg.LocalMetadataKey); err != nil {
		// Startup is the right moment to find out the node section does not
		// carry the metadata the filters will want to inject.
		logger.Warn("local metadata missing, frames will not be injected",
			slog.String("key", cfg.LocalMetadataKey),
			slog.String("error", err.Error()))
	}

	var tlsConfig *tls.Config
	if cfg.TLS != nil {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("cannot load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{cfg.ExpectedProtocol},
		}
	}

	registry := prometheus.NewRegistry()
	metrics := filter.NewMetrics(registry)
	downstream := filter.NewConfig(cfg.StatPrefix+".downstream", cfg.ExpectedProtocol, cfg.LocalMetadataKey,
		filter.DirectionDownstream, metrics.NewStats(cfg.StatPrefix+".downstream"), provider, logger)
	upstream := filter.NewConfig(cfg.StatPrefix+".upstream", cfg.ExpectedProtocol, cfg.LocalMetadataKey,
		filter.DirectionUpstream, metrics.NewStats(cfg.StatPrefix+".upstream"), provider, logger)
	srv := proxy.NewServer(downstream, upstream, cfg.UpstreamAddress, cfg.NegotiatedProtocol, tlsConfig, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting metadata exchange proxy",
			slog.String("listen", cfg.ListenAddress),
			slog.String("upstream", cfg.UpstreamAddress),
			slog.String("expected_protocol", cfg.ExpectedProtocol))
		return srv.ListenAndServe(gctx, cfg.ListenAddress)
	})
	if cfg.AdminAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		admin := &http.Server{Addr: cfg.AdminAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("starting admin server", slog.String("address", cfg.AdminAddress))
			if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
