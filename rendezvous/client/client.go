// Package client implements the two peer-side rendezvous helpers:
// Announce (sender) and Connect (receiver). Each binds a
// QUIC endpoint on the caller's own UDP socket -- the same socket the
// caller will reuse for hole punching and the eventual peer-to-peer QUIC
// handshake -- talks to the rendezvous server over it, and returns the
// other peer's externally observed address.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/kbrandt/quicsend/cert"
	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/rendezvous"
)

const alpnSuffix = "rendezvous"

func alpn() string {
	return fmt.Sprintf("%s-%s", buildinfo.ALPN, alpnSuffix)
}

func dial(ctx context.Context, socket net.PacketConn, serverAddr string) (quic.Connection, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("rendezvous client: resolve server address: %w", err)
	}
	conn, err := (&quic.Transport{Conn: socket}).Dial(ctx, udpAddr, cert.ClientTLSConfig(alpn()), &quic.Config{KeepAlivePeriod: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("rendezvous client: dial %s: %w", serverAddr, err)
	}
	return conn, nil
}

func readOneMessage(ctx context.Context, stream quic.ReceiveStream) (rendezvous.Message, error) {
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("rendezvous client: read: %w", err)
	}
	return rendezvous.Decode(raw)
}

// Announce registers externalAddr with the rendezvous server at
// serverAddr, invoking onCode with the allocated pairing code as soon as
// it arrives, and then blocks until the server forwards a connecting
// peer's address.
func Announce(ctx context.Context, socket net.PacketConn, externalAddr, serverAddr string, onCode func(rendezvous.Code)) (string, error) {
	conn, err := dial(ctx, socket, serverAddr)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.CloseWithError(0, "done") }()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return "", fmt.Errorf("rendezvous client: open stream: %w", err)
	}
	if _, err := stream.Write(rendezvous.Encode(rendezvous.Announce{Version: buildinfo.Version, ExternalAddr: externalAddr})); err != nil {
		return "", fmt.Errorf("rendezvous client: send announce: %w", err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("rendezvous client: send announce: %w", err)
	}
	msg, err := readOneMessage(ctx, stream)
	if err != nil {
		return "", err
	}
	switch m := msg.(type) {
	case rendezvous.WrongVersionReply:
		return "", fmt.Errorf("rendezvous client: %w", &ErrWrongVersion{Expected: m.Expected})
	case rendezvous.CodeReply:
		if onCode != nil {
			onCode(m.Code)
		}
	default:
		return "", fmt.Errorf("rendezvous client: unexpected reply %T to announce", msg)
	}

	// The server pushes the pairing SocketAddrReply on a new stream once a
	// matching Connect arrives.
	next, err := conn.AcceptStream(ctx)
	if err != nil {
		return "", fmt.Errorf("rendezvous client: await pairing: %w", err)
	}
	addrMsg, err := readOneMessage(ctx, next)
	if err != nil {
		return "", err
	}
	addrReply, ok := addrMsg.(rendezvous.SocketAddrReply)
	if !ok {
		return "", fmt.Errorf("rendezvous client: unexpected pairing message %T", addrMsg)
	}
	return addrReply.SocketAddr, nil
}

// Connect presents code to the rendezvous server and returns the
// announcing sender's externally observed address.
func Connect(ctx context.Context, socket net.PacketConn, externalAddr, serverAddr string, code rendezvous.Code) (string, error) {
	conn, err := dial(ctx, socket, serverAddr)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.CloseWithError(0, "done") }()

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return "", fmt.Errorf("rendezvous client: open stream: %w", err)
	}
	if _, err := stream.Write(rendezvous.Encode(rendezvous.Connect{Version: buildinfo.Version, ExternalAddr: externalAddr, Code: code})); err != nil {
		return "", fmt.Errorf("rendezvous client: send connect: %w", err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("rendezvous client: send connect: %w", err)
	}
	msg, err := readOneMessage(ctx, stream)
	if err != nil {
		return "", err
	}
	switch m := msg.(type) {
	case rendezvous.WrongVersionReply:
		return "", fmt.Errorf("rendezvous client: %w", &ErrWrongVersion{Expected: m.Expected})
	case rendezvous.SocketAddrReply:
		return m.SocketAddr, nil
	default:
		return "", fmt.Errorf("rendezvous client: unexpected reply %T to connect", msg)
	}
}

// ErrWrongVersion is returned when the rendezvous server rejects this
// build's version.
type ErrWrongVersion struct {
	Expected string
}

func (e *ErrWrongVersion) Error() string {
	return fmt.Sprintf("rendezvous client: server expects version %s", e.Expected)
}
