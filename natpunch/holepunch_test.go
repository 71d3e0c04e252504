package natpunch_test

import (
	"net"
	"sync"
	"testing"

	"github.com/kbrandt/quicsend/natpunch"
)

func udpPair(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	aAddr := a.LocalAddr().(*net.UDPAddr)
	bAddr := b.LocalAddr().(*net.UDPAddr)
	_ = a.Close()
	_ = b.Close()
	aConn, err := net.DialUDP("udp", aAddr, bAddr)
	if err != nil {
		t.Fatal(err)
	}
	bConn, err := net.DialUDP("udp", bAddr, aAddr)
	if err != nil {
		t.Fatal(err)
	}
	return aConn, bConn
}

func TestPunchSucceedsBothSides(t *testing.T) {
	a, b := udpPair(t)
	defer func() { _ = a.Close(); _ = b.Close() }()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs <- natpunch.Punch(a) }()
	go func() { defer wg.Done(); errs <- natpunch.Punch(b) }()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("punch failed: %v", err)
		}
	}
}

func TestPunchNoPeerFails(t *testing.T) {
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	// dial a port nobody is listening on
	dead, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = dead.Close() }()
	if err := natpunch.Punch(dead); err == nil {
		t.Error("expected punch to fail with no peer")
	}
}
