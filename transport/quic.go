package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/kbrandt/quicsend/cert"
)

// quicConfig is shared by both the address-based listener and dialer: a
// keep-alive PING every KeepAlive seconds to hold NAT mappings open
// through an otherwise-idle control phase.
func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: KeepAlive,
	}
}

// AddressEndpoint is the rendezvous-server variant of Endpoint: both peers
// already know each other's external UDP address (from rendezvous +
// hole punch) and reuse the same *net.UDPConn for the QUIC handshake, so
// the NAT pinhole opened by hole punching is still the socket QUIC dials
// from.
type AddressEndpoint struct {
	transport *quic.Transport
	alpn      string
}

// NewAddressEndpoint wraps an already-bound, already-hole-punched UDP
// socket for use as a QUIC endpoint under the given ALPN identifier, which
// doubles as this protocol's version marker.
func NewAddressEndpoint(pconn net.PacketConn, alpn string) *AddressEndpoint {
	return &AddressEndpoint{
		transport: &quic.Transport{Conn: pconn},
		alpn:      alpn,
	}
}

// Accept waits for a single incoming QUIC connection (the sender's role in
// the address-based variant: "one side acts as QUIC server").
func (e *AddressEndpoint) Accept(ctx context.Context) (Conn, error) {
	tlsConf, err := cert.ServerTLSConfig(e.alpn)
	if err != nil {
		return nil, fmt.Errorf("transport: server tls config: %w", err)
	}
	ln, err := e.transport.Listen(tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	qc, err := ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return &quicConn{conn: qc}, nil
}

// Dial opens a single outgoing QUIC connection to addr (the receiver's
// role: "the other as client with a certificate verifier that accepts any
// certificate").
func (e *AddressEndpoint) Dial(ctx context.Context, addr string) (Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", addr, err)
	}
	qc, err := e.transport.Dial(ctx, udpAddr, cert.ClientTLSConfig(e.alpn), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &quicConn{conn: qc}, nil
}

func (e *AddressEndpoint) Close() error {
	return e.transport.Close()
}

// quicConn adapts quic.Connection to the Conn interface. Connection-type
// reporting for the address-based variant is always Direct once
// established: there is no relay in this variant by construction.
type quicConn struct {
	conn quic.Connection
	kind Kind
}

func (c *quicConn) OpenUniStream(ctx context.Context) (io.WriteCloser, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open uni stream: %w", err)
	}
	return s, nil
}

func (c *quicConn) AcceptUniStream(ctx context.Context) (io.Reader, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept uni stream: %w", err)
	}
	return s, nil
}

func (c *quicConn) Kind() Kind {
	if c.kind != KindUnknown {
		return c.kind
	}
	return KindDirect
}

// CloseWithDrain waits for the peer to close (sender role) or closes
// immediately after cancelling the context (receiver role, via ctx);
// callers control which by the context they pass and by calling this only
// after their own half of the protocol is done.
func (c *quicConn) CloseWithDrain(ctx context.Context) error {
	select {
	case <-c.conn.Context().Done():
	case <-ctx.Done():
	}
	_ = c.conn.CloseWithError(0, "done")
	return nil
}
