package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"

	"github.com/kbrandt/quicsend/internal/codec"
)

// Ticket is the connection-relay variant's opaque address blob, the Go
// counterpart of a base64-encoded bincode NodeAddr: this pool has no
// equivalent of a relay-fabric client (see DESIGN.md), so a Ticket here
// carries the set of candidate
// UDP addresses the holder's endpoint is reachable at -- direct addresses
// first, with any address beyond the first treated as a relay fallback --
// preserving the wire contract (one opaque base64 string a user copies and
// pastes) without depending on an unavailable third-party relay network.
type Ticket struct {
	Addrs []string
}

// Encode renders t as a base64-no-pad string suitable for a user to copy
// and paste.
func (t Ticket) Encode() string {
	w := codec.NewWriter()
	w.WriteUint32(uint32(len(t.Addrs)))
	for _, a := range t.Addrs {
		w.WriteString(a)
	}
	return base64.RawURLEncoding.EncodeToString(w.Bytes())
}

// DecodeTicket parses a Ticket produced by Encode.
func DecodeTicket(s string) (Ticket, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Ticket{}, fmt.Errorf("transport: decode ticket: %w", err)
	}
	r := codec.NewReader(raw)
	n, err := r.ReadUint32()
	if err != nil {
		return Ticket{}, fmt.Errorf("transport: decode ticket: %w", err)
	}
	t := Ticket{Addrs: make([]string, 0, n)}
	for i := uint32(0); i < n; i++ {
		a, err := r.ReadString()
		if err != nil {
			return Ticket{}, fmt.Errorf("transport: decode ticket: %w", err)
		}
		t.Addrs = append(t.Addrs, a)
	}
	return t, nil
}

// TicketEndpoint is the connection-relay variant of Endpoint. The sender
// produces a Ticket describing its own endpoint's bound address(es); the
// receiver's DialTicket tries each address in turn, reporting Relayed if
// only a non-first (fallback) address succeeded. It never reports Mixed.
type TicketEndpoint struct {
	inner *AddressEndpoint
	self  net.PacketConn
	alpn  string
}

// NewTicketEndpoint binds pconn the same way the address-based variant
// does; Ticket() then reports the bound local address as the candidate
// list a peer should dial.
func NewTicketEndpoint(pconn net.PacketConn, alpn string) *TicketEndpoint {
	return &TicketEndpoint{
		inner: NewAddressEndpoint(pconn, alpn),
		self:  pconn,
		alpn:  alpn,
	}
}

// Ticket returns the blob this endpoint's owner shares with the remote
// peer out of band.
func (e *TicketEndpoint) Ticket() Ticket {
	return Ticket{Addrs: []string{e.self.LocalAddr().String()}}
}

func (e *TicketEndpoint) Accept(ctx context.Context) (Conn, error) {
	return e.inner.Accept(ctx)
}

// DialTicket tries each of t's candidate addresses in order, returning the
// first successful connection. The first address is assumed direct; any
// other successful address is reported as Relayed.
func (e *TicketEndpoint) DialTicket(ctx context.Context, t Ticket) (Conn, error) {
	if len(t.Addrs) == 0 {
		return nil, fmt.Errorf("transport: ticket has no candidate addresses")
	}
	var lastErr error
	for i, addr := range t.Addrs {
		conn, err := e.inner.Dial(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		if qc, ok := conn.(*quicConn); ok && i > 0 {
			qc.kind = KindRelayed
		}
		return conn, nil
	}
	return nil, fmt.Errorf("transport: all ticket candidates failed: %w", lastErr)
}

func (e *TicketEndpoint) Dial(ctx context.Context, addr string) (Conn, error) {
	return e.inner.Dial(ctx, addr)
}

func (e *TicketEndpoint) Close() error {
	return e.inner.Close()
}
