// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/envoyproxy/tcp-metadata-exchange/internal/version"
)

type (
	cmd struct {
		Version struct{} `cmd:"" help:"Show version."`
		Run     cmdRun   `cmd:"" help:"Run the metadata exchange proxy."`
	}
	cmdRun struct {
		Config string `arg:"" name:"config" help:"Path to the proxy configuration yaml file." type:"path"`
	}
)

type runFn func(ctx context.Context, c cmdRun, stdout, stderr io.Writer) error

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], run)
}

func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, rf runFn) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("mxproxy"),
		kong.Description("TCP proxy that exchanges peer identity metadata with cooperating proxies."),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	kctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch kctx.Command() {
	case "version":
		_, _ = stdout.Write([]byte(fmt.Sprintf("mxproxy: %s\n", version.Version)))
	case "run <config>":
		if err := rf(ctx, c.Run, stdout, stderr); err != nil {
			log.Fatalf("Error running proxy: %v", err)
		}
	default:
		panic("unreachable")
	}
}
