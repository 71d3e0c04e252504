package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kbrandt/quicsend/rendezvous"
	"github.com/kbrandt/quicsend/rendezvous/client"
	"github.com/kbrandt/quicsend/rendezvous/server"
)

func startServer(t *testing.T, opts ...server.Options) *server.Server {
	t.Helper()
	s, err := server.New("127.0.0.1:0", opts...)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
	})
	go func() { _ = s.Run(ctx) }()
	return s
}

func udpSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAnnounceConnectPairing(t *testing.T) {
	s := startServer(t)
	serverAddr := s.Addr().String()

	senderSocket := udpSocket(t)
	receiverSocket := udpSocket(t)

	codeCh := make(chan rendezvous.Code, 1)
	announceResult := make(chan struct {
		addr string
		err  error
	}, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		addr, err := client.Announce(ctx, senderSocket, "10.0.0.1:4000", serverAddr, func(c rendezvous.Code) {
			codeCh <- c
		})
		announceResult <- struct {
			addr string
			err  error
		}{addr, err}
	}()

	var code rendezvous.Code
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for code")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gotSenderAddr, err := client.Connect(ctx, receiverSocket, "10.0.0.2:5000", serverAddr, code)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if gotSenderAddr != "10.0.0.1:4000" {
		t.Errorf("connect got sender addr %q", gotSenderAddr)
	}

	result := <-announceResult
	if result.err != nil {
		t.Fatalf("announce: %v", result.err)
	}
	if result.addr != "10.0.0.2:5000" {
		t.Errorf("announce got connector addr %q", result.addr)
	}
}

func TestInvalidCode(t *testing.T) {
	s := startServer(t)
	serverAddr := s.Addr().String()
	receiverSocket := udpSocket(t)

	var bogus rendezvous.Code
	copy(bogus[:], "ZZZZZZZZ")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Connect(ctx, receiverSocket, "10.0.0.2:5000", serverAddr, bogus); err == nil {
		t.Error("expected error connecting with an unregistered code")
	}
}

func TestMaxConcurrentConnections(t *testing.T) {
	s := startServer(t, server.WithMaxConcurrentConnections(1))
	serverAddr := s.Addr().String()

	socket1 := udpSocket(t)
	socket2 := udpSocket(t)

	codeCh := make(chan rendezvous.Code, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = client.Announce(ctx, socket1, "10.0.0.1:4000", serverAddr, func(c rendezvous.Code) {
			codeCh <- c
		})
	}()
	select {
	case <-codeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("first announce never got a code")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Announce(ctx, socket2, "10.0.0.3:4000", serverAddr, func(rendezvous.Code) {})
	if err == nil {
		t.Error("expected second announce to be rejected over the concurrency limit")
	}
}

func TestStaleEviction(t *testing.T) {
	s := startServer(t, server.WithMaxConnectionAge(200*time.Millisecond))
	serverAddr := s.Addr().String()
	senderSocket := udpSocket(t)

	codeCh := make(chan rendezvous.Code, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = client.Announce(ctx, senderSocket, "10.0.0.1:4000", serverAddr, func(c rendezvous.Code) {
			codeCh <- c
		})
	}()
	var code rendezvous.Code
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("announce never got a code")
	}

	time.Sleep(500 * time.Millisecond)

	receiverSocket := udpSocket(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Connect(ctx, receiverSocket, "10.0.0.2:5000", serverAddr, code); err == nil {
		t.Error("expected connect to fail after the waiter aged out")
	}
}
