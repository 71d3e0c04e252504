// Package transport wraps a QUIC endpoint behind a single Conn interface
// with two implementations selected by how the two peers found each
// other: address-based (post rendezvous + hole punch) or ticket-based
// (direct, out-of-band exchange). Both produce the same Conn, so sender
// and receiver state machines never know which one they got.
package transport

import (
	"context"
	"io"
	"time"
)

// Kind classifies how a Conn's bytes are actually routed, surfaced for the
// CLI's post-connect summary line.
type Kind int

const (
	KindUnknown Kind = iota
	KindDirect
	KindRelayed
	KindMixed
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindRelayed:
		return "relayed"
	case KindMixed:
		return "mixed"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// KeepAlive is the interval at which this module pings an idle connection
// to keep NAT mappings alive.
const KeepAlive = 5 * time.Second

// Conn is a single peer-to-peer connection: it can open or accept
// unidirectional control substreams (one per control message) and exactly
// one payload substream, and reports how it's routed.
type Conn interface {
	// OpenUniStream opens a new unidirectional substream for a single
	// outgoing control message or the payload stream.
	OpenUniStream(ctx context.Context) (io.WriteCloser, error)
	// AcceptUniStream accepts the next incoming unidirectional substream.
	AcceptUniStream(ctx context.Context) (io.Reader, error)
	// Kind reports how this connection is routed, for UI purposes only.
	Kind() Kind
	// CloseWithDrain waits until the peer closes the connection or ctx is
	// done, whichever comes first, and then closes the connection. A
	// caller that wants an immediate close passes an already-cancelled
	// ctx.
	CloseWithDrain(ctx context.Context) error
}

// Endpoint is a bound QUIC listener/dialer: one UDP socket's worth of QUIC
// state. Address-based and ticket-based variants each implement this.
type Endpoint interface {
	// Accept blocks for a single inbound connection (sender side,
	// address-based; or either side, ticket-based).
	Accept(ctx context.Context) (Conn, error)
	// Dial opens a single outbound connection to addr (receiver side,
	// address-based).
	Dial(ctx context.Context, addr string) (Conn, error)
	// Close tears down the endpoint and its UDP socket.
	Close() error
}
