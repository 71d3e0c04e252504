// Package peer orchestrates the connection-establishment sequence a CLI
// command needs before handing a transport.Conn to sender.Sender or
// receiver.Receiver: either the rendezvous path (STUN address discovery,
// short-code pairing, UDP hole punching, then a QUIC handshake over the
// punched socket) or the ticket path (no server involved at all, the
// receiver already has a connectable address blob out of band).
package peer

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
	"github.com/kbrandt/quicsend/internal/stunaddr"
	"github.com/kbrandt/quicsend/natpunch"
	"github.com/kbrandt/quicsend/rendezvous"
	"github.com/kbrandt/quicsend/rendezvous/client"
	"github.com/kbrandt/quicsend/transport"
)

// Role identifies which half of the connection this process will play:
// the sender always listens, the receiver always dials -- one side acts
// as QUIC server, the other as client.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Options configures Connect. Exactly one of (Direct with Ticket) or
// (ServerAddr, plus Code for a receiver) must be set.
type Options struct {
	// ServerAddr is the rendezvous server to contact; ignored if Direct.
	ServerAddr string
	// StunServer overrides stunaddr.DefaultServer; ignored if Direct.
	StunServer string
	// Direct skips the rendezvous server and STUN entirely: the two ends
	// exchange a transport.Ticket out of band instead.
	Direct bool
	// Ticket is the receiver's encoded transport.Ticket string, direct
	// mode only.
	Ticket string
	// Code is the pairing code a receiver presents, rendezvous mode only.
	Code string
	// OnCode is invoked with the sender's freshly allocated pairing code,
	// as soon as the rendezvous server returns it.
	OnCode func(rendezvous.Code)
	// OnTicket is invoked with the sender's own ticket in direct mode, so
	// the caller can print it for the receiver to copy.
	OnTicket func(transport.Ticket)
}

// Connect runs the full establishment sequence and returns a ready
// transport.Conn plus how it ended up being routed.
func Connect(ctx context.Context, role Role, opts Options) (transport.Conn, transport.Kind, error) {
	if opts.Direct {
		return connectDirect(ctx, role, opts)
	}
	return connectRendezvous(ctx, role, opts)
}

// connectDirect skips STUN and rendezvous altogether: the sender's bound
// address(es) travel to the receiver as an opaque ticket string over
// whatever out-of-band channel the caller prefers.
func connectDirect(ctx context.Context, role Role, opts Options) (transport.Conn, transport.Kind, error) {
	socket, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, transport.KindUnknown, fmt.Errorf("peer: bind socket: %w", err)
	}
	endpoint := transport.NewTicketEndpoint(socket, buildinfo.ALPN)

	var conn transport.Conn
	switch role {
	case RoleSender:
		if opts.OnTicket != nil {
			opts.OnTicket(endpoint.Ticket())
		}
		conn, err = endpoint.Accept(ctx)
	case RoleReceiver:
		var t transport.Ticket
		t, err = transport.DecodeTicket(opts.Ticket)
		if err != nil {
			err = fmt.Errorf("peer: decode ticket: %w", err)
			break
		}
		conn, err = endpoint.DialTicket(ctx, t)
	default:
		err = fmt.Errorf("peer: unknown role %d", role)
	}
	if err != nil {
		_ = endpoint.Close()
		return nil, transport.KindUnknown, err
	}
	return conn, conn.Kind(), nil
}

// connectRendezvous performs STUN discovery, short-code pairing, UDP hole
// punching, and finally the QUIC handshake over the punched socket.
func connectRendezvous(ctx context.Context, role Role, opts Options) (transport.Conn, transport.Kind, error) {
	stunServer := opts.StunServer
	if stunServer == "" {
		stunServer = stunaddr.DefaultServer
	}

	socket, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, transport.KindUnknown, fmt.Errorf("peer: bind socket: %w", err)
	}
	localAddr := socket.LocalAddr().(*net.UDPAddr)

	external, err := stunaddr.External(socket, stunServer)
	if err != nil {
		_ = socket.Close()
		return nil, transport.KindUnknown, fmt.Errorf("peer: discover external address: %w", err)
	}
	qlog.Info("peer: external address discovered", "addr", external)

	remote, err := resolvePeerAddr(ctx, socket, external, role, opts)
	if err != nil {
		_ = socket.Close()
		return nil, transport.KindUnknown, err
	}
	qlog.Info("peer: remote address resolved", "addr", remote)

	if err := socket.Close(); err != nil {
		return nil, transport.KindUnknown, fmt.Errorf("peer: release discovery socket: %w", err)
	}
	remoteUDPAddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, transport.KindUnknown, fmt.Errorf("peer: resolve remote %s: %w", remote, err)
	}
	punchConn, err := net.DialUDP("udp", localAddr, remoteUDPAddr)
	if err != nil {
		return nil, transport.KindUnknown, fmt.Errorf("peer: rebind local port %d: %w", localAddr.Port, err)
	}

	if err := runPunch(ctx, punchConn); err != nil {
		qlog.Warn("peer: hole punch did not confirm, proceeding to QUIC handshake anyway", "err", err)
	}

	endpoint := transport.NewAddressEndpoint(punchConn, buildinfo.ALPN)
	var conn transport.Conn
	switch role {
	case RoleSender:
		conn, err = endpoint.Accept(ctx)
	case RoleReceiver:
		conn, err = endpoint.Dial(ctx, remote)
	}
	if err != nil {
		_ = endpoint.Close()
		return nil, transport.KindUnknown, fmt.Errorf("peer: quic handshake: %w", err)
	}
	return conn, conn.Kind(), nil
}

// runPunch bounds the hole-punch exchange by ctx using an errgroup, the
// idiom zrepl and go-filer use to wait on an operation against a shared
// cancellation signal: the punch loop has its own five-round internal
// timeout, but a caller-cancelled ctx -- e.g. the user aborting -- should
// not be made to wait the whole five rounds out. Punch itself runs on a
// goroutine outside the group, so g.Wait returns as soon as ctx is
// cancelled; the abandoned punch finishes its remaining rounds in the
// background.
func runPunch(ctx context.Context, conn *net.UDPConn) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan error, 1)
	go func() {
		done <- natpunch.Punch(conn)
	}()
	g.Go(func() error {
		select {
		case err := <-done:
			return err
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	return g.Wait()
}

func resolvePeerAddr(ctx context.Context, socket *net.UDPConn, external string, role Role, opts Options) (string, error) {
	switch role {
	case RoleSender:
		return client.Announce(ctx, socket, external, opts.ServerAddr, opts.OnCode)
	case RoleReceiver:
		code, err := rendezvous.ParseCode(opts.Code)
		if err != nil {
			return "", err
		}
		return client.Connect(ctx, socket, external, opts.ServerAddr, code)
	default:
		return "", fmt.Errorf("peer: unknown role %d", role)
	}
}
