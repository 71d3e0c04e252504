// Package server implements the rendezvous server: a short-code registry
// that pairs a waiting sender (Announce) with a connecting receiver
// (Connect), ages out stale waiters, and bounds concurrency. It follows
// the New -> Run -> Close lifecycle shape of a small long-lived process,
// here a QUIC listener.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haraldrudell/parl/prand"
	"github.com/quic-go/quic-go"
	"golang.org/x/exp/maps"

	"github.com/kbrandt/quicsend/cert"
	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
	"github.com/kbrandt/quicsend/rendezvous"
)

const (
	// DefaultMaxConnectionAge is how long an Announce waits for a matching
	// Connect before being evicted.
	DefaultMaxConnectionAge = 60 * time.Second
	// DefaultMaxConcurrentConnections is MAX_CONCURRENT_CONNECTIONS.
	DefaultMaxConcurrentConnections = 1000
	// connCloseDelay is CONN_CLOSE_DELAY: how long the server waits after
	// forwarding both peers' addresses before closing their connections,
	// to let the SocketAddrReply packets actually drain.
	connCloseDelay = 3 * time.Second

	alpnSuffix = "rendezvous"
)

// waiter is one entry in the awaiting map: an announcing sender's held-open
// connection, its externally observed address, and a log-correlation id.
type waiter struct {
	conn   quic.Connection
	addr   string
	connID string
	timer  *time.Timer
}

// Server is the rendezvous registry. The zero value is not usable; build
// one with New.
type Server struct {
	maxAge        time.Duration
	maxConcurrent int

	mu      sync.RWMutex
	waiting map[rendezvous.Code]*waiter

	listener *quic.Listener
	metrics  *metrics
	nextID   uint64
	nextIDMu sync.Mutex
}

// Options configures a Server.
type Options func(*Server)

func WithMaxConnectionAge(d time.Duration) Options {
	return func(s *Server) { s.maxAge = d }
}

func WithMaxConcurrentConnections(n int) Options {
	return func(s *Server) { s.maxConcurrent = n }
}

// New binds a QUIC listener on bindAddr ("host:port") and returns a Server
// ready to Run.
func New(bindAddr string, opts ...Options) (*Server, error) {
	s := &Server{
		maxAge:        DefaultMaxConnectionAge,
		maxConcurrent: DefaultMaxConcurrentConnections,
		waiting:       map[rendezvous.Code]*waiter{},
		metrics:       newMetrics(),
	}
	for _, fn := range opts {
		fn(s)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("server: resolve %s: %w", bindAddr, err)
	}
	pconn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("server: bind %s: %w", bindAddr, err)
	}
	alpn := fmt.Sprintf("%s-%s", buildinfo.ALPN, alpnSuffix)
	tlsConf, err := cert.ServerTLSConfig(alpn)
	if err != nil {
		_ = pconn.Close()
		return nil, fmt.Errorf("server: tls config: %w", err)
	}
	ln, err := (&quic.Transport{Conn: pconn}).Listen(tlsConf, &quic.Config{KeepAlivePeriod: 5 * time.Second})
	if err != nil {
		_ = pconn.Close()
		return nil, fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	return s, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Metrics exposes the server's Prometheus collectors for registration by
// the caller (cmd/quicsend-rendezvous wires these into an HTTP handler).
func (s *Server) Metrics() []prometheusCollector {
	return s.metrics.collectors()
}

// Run accepts connections until ctx is cancelled or Accept fails. Each
// connection is handled on its own goroutine (task-per-connection).
func (s *Server) Run(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// Close evicts every currently-waiting connection with reason "shutdown",
// then tears down the listener and its socket. Waiters are collected and
// sorted before eviction, for a deterministic eviction order.
func (s *Server) Close() error {
	s.mu.RLock()
	codes := maps.Keys(s.waiting)
	s.mu.RUnlock()
	sort.Slice(codes, func(i, j int) bool { return codes[i].String() < codes[j].String() })
	for _, code := range codes {
		s.evict(code, "shutdown")
	}
	return s.listener.Close()
}

func (s *Server) connID() string {
	s.nextIDMu.Lock()
	defer s.nextIDMu.Unlock()
	s.nextID++
	return fmt.Sprintf("%d/%s", s.nextID, uuid.NewString())
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		_ = conn.CloseWithError(0, "read error")
		return
	}
	msg, err := rendezvous.Decode(raw)
	if err != nil {
		qlog.Warn("rendezvous: malformed message", "err", err)
		_ = conn.CloseWithError(1, "malformed message")
		return
	}
	switch m := msg.(type) {
	case rendezvous.Announce:
		s.handleAnnounce(ctx, conn, stream, m)
	case rendezvous.Connect:
		s.handleConnect(ctx, conn, stream, m)
	default:
		_ = conn.CloseWithError(1, "unexpected message")
	}
}

func (s *Server) handleAnnounce(ctx context.Context, conn quic.Connection, stream quic.Stream, m rendezvous.Announce) {
	if !buildinfo.CompatibleMajor(m.Version) {
		s.rejectVersion(conn, stream)
		return
	}
	s.mu.RLock()
	full := len(s.waiting) >= s.maxConcurrent
	s.mu.RUnlock()
	if full {
		// Over the concurrency limit: drop silently, without
		// acknowledgement, rather than queue.
		_ = conn.CloseWithError(2, "too many connections")
		return
	}

	id := s.connID()
	code := s.allocateCode()
	w := &waiter{conn: conn, addr: m.ExternalAddr, connID: id}
	w.timer = time.AfterFunc(s.maxAge, func() { s.evict(code, "timeout") })

	s.mu.Lock()
	s.waiting[code] = w
	s.mu.Unlock()
	s.metrics.waiters.Set(float64(s.waitingCount()))
	s.metrics.announced.Inc()
	qlog.Info("rendezvous: announce", "conn", id, "code", code.String())

	if err := writeMessage(stream, rendezvous.CodeReply{Code: code}); err != nil {
		qlog.Warn("rendezvous: reply to announce failed", "conn", id, "err", err)
		s.evict(code, "write error")
	}
}

func (s *Server) handleConnect(ctx context.Context, conn quic.Connection, stream quic.Stream, m rendezvous.Connect) {
	if !buildinfo.CompatibleMajor(m.Version) {
		s.rejectVersion(conn, stream)
		return
	}

	s.mu.Lock()
	w, ok := s.waiting[m.Code]
	if ok {
		delete(s.waiting, m.Code)
	}
	s.mu.Unlock()
	s.metrics.waiters.Set(float64(s.waitingCount()))

	if !ok {
		qlog.Info("rendezvous: invalid code", "code", m.Code.String())
		_ = conn.CloseWithError(3, "invalid code")
		return
	}
	w.timer.Stop()
	s.metrics.paired.Inc()

	senderErr := writeNewStream(ctx, w.conn, rendezvous.SocketAddrReply{SocketAddr: m.ExternalAddr})
	connectorErr := writeMessage(stream, rendezvous.SocketAddrReply{SocketAddr: w.addr})
	if senderErr != nil || connectorErr != nil {
		qlog.Warn("rendezvous: pairing write failed", "code", m.Code.String(), "senderErr", senderErr, "connectorErr", connectorErr)
	}
	qlog.Info("rendezvous: paired", "code", m.Code.String(), "sender", w.connID)

	// Let both SocketAddrReply packets drain before tearing down.
	time.Sleep(connCloseDelay)
	_ = w.conn.CloseWithError(0, "paired")
	_ = conn.CloseWithError(0, "paired")
}

func (s *Server) rejectVersion(conn quic.Connection, stream quic.Stream) {
	_ = writeMessage(stream, rendezvous.WrongVersionReply{Expected: buildinfo.Version})
	time.Sleep(connCloseDelay)
	_ = conn.CloseWithError(4, "wrong version")
}

func (s *Server) evict(code rendezvous.Code, reason string) {
	s.mu.Lock()
	w, ok := s.waiting[code]
	if ok {
		delete(s.waiting, code)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.waiters.Set(float64(s.waitingCount()))
	qlog.Info("rendezvous: evicting", "code", code.String(), "reason", reason)
	_ = w.conn.CloseWithError(5, reason)
}

func (s *Server) waitingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.waiting)
}

// allocateCode draws a fresh random Code, re-rolling on the vanishingly
// unlikely event of a collision with a currently-waiting code.
func (s *Server) allocateCode() rendezvous.Code {
	for {
		var code rendezvous.Code
		for i := range code {
			code[i] = rendezvous.CodeAlphabet[randIndex(len(rendezvous.CodeAlphabet))]
		}
		s.mu.RLock()
		_, collision := s.waiting[code]
		s.mu.RUnlock()
		if !collision {
			return code
		}
	}
}

// randIndex draws a uniform index in [0, n) using prand's fast
// runtime.fastrand-backed generator (this source pool's parl tree).
func randIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return int(prand.Uint32n(uint32(n)))
}

// writeMessage writes msg to stream and half-closes the send side, the
// same open-write-finish pattern the peer wire protocol uses, without
// gzip: rendezvous messages are a handful of bytes.
func writeMessage(stream quic.Stream, msg rendezvous.Message) error {
	if _, err := stream.Write(rendezvous.Encode(msg)); err != nil {
		return err
	}
	return stream.Close()
}

// writeNewStream opens a fresh stream on a previously stored connection
// (the waiting sender's) to deliver a message asynchronously, after its
// original request/reply stream has already closed.
func writeNewStream(ctx context.Context, conn quic.Connection, msg rendezvous.Message) error {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("server: open stream: %w", err)
	}
	return writeMessage(stream, msg)
}
