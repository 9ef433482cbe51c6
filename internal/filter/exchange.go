// Copyright Envoy TCP Metadata Exchange Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package filter

import (
	"log/slog"

	"github.com/envoyproxy/tcp-metadata-exchange/internal/dynmeta"
	"github.com/envoyproxy/tcp-metadata-exchange/internal/wire"
)

// Host is the capability surface the filter needs from its transport.
type Host interface {
	// NegotiatedProtocol returns the application protocol token agreed upon
	// during connection setup, or the empty string if none was negotiated.
	NegotiatedProtocol() string
}

// connState tracks where the filter is in the exchange.
type connState int

const (
	// stateNotNegotiated: the negotiated protocol has not been read yet.
	stateNotNegotiated connState = iota
	// stateBypass: the expected protocol was not negotiated; all bytes pass
	// through untouched in both directions.
	stateBypass
	// stateWritePending: participating, nothing parsed, frame not written.
	stateWritePending
	// stateReadingHeader: accumulating inbound bytes for the frame header.
	stateReadingHeader
	// stateReadingPayload: accumulating inbound bytes for the frame payload.
	stateReadingPayload
	// stateDone: the peer frame was consumed; everything passes through.
	stateDone
	// stateInvalid: parsing failed; behaves like stateDone except no peer
	// metadata was ever published.
	stateInvalid
)

// Filter is one metadata exchange instance, owned by exactly one connection.
// The surrounding transport must invoke its callbacks serially; the filter
// performs no locking of its own.
//
// No failure the filter encounters ever surfaces to the connection: malformed
// peer input degrades to transparent pass-through and is only visible in the
// counters.
type Filter struct {
	cfg  *Config
	host Host
	meta *dynmeta.Store

	state connState
	// pending accumulates inbound bytes for the frame currently being parsed.
	pending []byte
	// expectedPayloadLength is valid once the header has been parsed.
	expectedPayloadLength int
	// frameWritten enforces exactly-once injection.
	frameWritten bool
}

// OnConnectionEstablished reads the negotiated protocol and decides whether
// this connection participates in the exchange.
func (f *Filter) OnConnectionEstablished() {
	if f.state == stateNotNegotiated {
		f.negotiate()
	}
}

// OnOutboundData filters bytes about to be written toward the peer and
// returns what the transport should actually write. On the first outbound
// write of a participating connection the local metadata frame is prepended,
// even when data is empty.
func (f *Filter) OnOutboundData(data []byte, _ bool) []byte {
	if f.state == stateNotNegotiated {
		f.negotiate()
	}
	switch f.state {
	case stateBypass, stateInvalid:
		return data
	}
	if f.frameWritten {
		return data
	}
	f.frameWritten = true
	if f.state == stateWritePending {
		f.state = stateReadingHeader
	}
	frame := f.localFrame()
	if frame == nil {
		return data
	}
	return append(frame, data...)
}

// OnInboundData filters bytes read from the peer and returns what belongs to
// the application. Frame bytes are buffered and never forwarded; the filter
// never blocks waiting for more data, it resumes on the next delivery with
// prior bytes retained.
func (f *Filter) OnInboundData(data []byte, endOfStream bool) []byte {
	if f.state == stateNotNegotiated {
		f.negotiate()
	}
	switch f.state {
	case stateBypass, stateDone, stateInvalid:
		return data
	}
	if len(data) > 0 {
		f.pending = append(f.pending, data...)
	}

	// The peer's frame may arrive before this side's first write opportunity,
	// so header parsing also runs while the write is still pending.
	if f.state == stateWritePending || f.state == stateReadingHeader {
		if len(f.pending) < wire.HeaderSize {
			if endOfStream {
				f.state = stateInvalid
				return f.drainPending()
			}
			return nil
		}
		magicValid, payloadLength := wire.DecodeHeader(f.pending)
		if !magicValid || payloadLength > wire.MaxPayloadSize {
			f.cfg.stats.InitialHeaderNotFound.Inc()
			f.state = stateInvalid
			f.cfg.logger.Debug("no metadata exchange header on inbound stream, passing through")
			return f.drainPending()
		}
		f.expectedPayloadLength = int(payloadLength)
		f.pending = f.pending[wire.HeaderSize:]
		f.state = stateReadingPayload
	}

	if len(f.pending) < f.expectedPayloadLength {
		if endOfStream {
			// The frame is unrecoverable; forward the partial bytes and
			// publish nothing.
			f.state = stateInvalid
			return f.drainPending()
		}
		return nil
	}

	payload := f.pending[:f.expectedPayloadLength]
	surplus := f.pending[f.expectedPayloadLength:]
	f.pending = nil

	value, err := wire.DecodeMetadata(payload)
	if err != nil {
		f.cfg.stats.HeaderNotFound.Inc()
		f.state = stateInvalid
		f.cfg.logger.Debug("cannot decode peer metadata payload", slog.String("error", err.Error()))
		return surplus
	}
	f.meta.Set(f.cfg.MetadataNamespace(), value)
	f.cfg.stats.MetadataAdded.Inc()
	f.state = stateDone
	return surplus
}

func (f *Filter) negotiate() {
	proto := f.host.NegotiatedProtocol()
	if proto != f.cfg.expectedProtocol {
		f.cfg.stats.AlpnProtocolNotFound.Inc()
		f.state = stateBypass
		f.cfg.logger.Debug("negotiated protocol does not match, bypassing exchange",
			slog.String("negotiated", proto),
			slog.String("expected", f.cfg.expectedProtocol))
		return
	}
	f.cfg.stats.AlpnProtocolFound.Inc()
	f.state = stateWritePending
}

// localFrame encodes this node's metadata frame, or nil when the local
// metadata is unavailable or unencodable. Injection is then skipped; the peer
// side degrades to pass-through on its own.
func (f *Filter) localFrame() []byte {
	value, err := f.cfg.local.Lookup(f.cfg.localMetadataKey)
	if err != nil {
		f.cfg.logger.Warn("local metadata unavailable, skipping frame injection",
			slog.String("key", f.cfg.localMetadataKey),
			slog.String("error", err.Error()))
		return nil
	}
	frame, err := wire.EncodeFrame(value)
	if err != nil {
		f.cfg.logger.Warn("cannot encode local metadata frame",
			slog.String("key", f.cfg.localMetadataKey),
			slog.String("error", err.Error()))
		return nil
	}
	return frame
}

func (f *Filter) drainPending() []byte {
	buffered := f.pending
	f.pending = nil
	return buffered
}
