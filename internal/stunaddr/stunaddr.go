// Package stunaddr discovers a UDP socket's externally observed address
// via a public STUN server, over the same bound socket used for
// rendezvous and hole punching. Announce/Connect carry a caller-supplied
// external address field; this package is how that field gets filled in.
package stunaddr

import (
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"
)

// DefaultServer is a well-known public STUN server used when the caller
// does not configure one explicitly.
const DefaultServer = "stun.l.google.com:19302"

const queryTimeout = 5 * time.Second

// External sends a single STUN binding request over conn to server and
// returns the XOR-MAPPED-ADDRESS the server observed, i.e. this socket's
// address as seen from outside any NAT between here and server.
func External(conn net.PacketConn, server string) (string, error) {
	serverAddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return "", fmt.Errorf("stunaddr: resolve %s: %w", server, err)
	}

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return "", fmt.Errorf("stunaddr: build request: %w", err)
	}
	if _, err := conn.WriteTo(req.Raw, serverAddr); err != nil {
		return "", fmt.Errorf("stunaddr: send request: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(queryTimeout)); err != nil {
		return "", fmt.Errorf("stunaddr: set deadline: %w", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 1500)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return "", fmt.Errorf("stunaddr: read response: %w", err)
	}
	res := &stun.Message{Raw: buf[:n]}
	if err := res.Decode(); err != nil {
		return "", fmt.Errorf("stunaddr: decode response: %w", err)
	}
	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err != nil {
		return "", fmt.Errorf("stunaddr: no mapped address in response: %w", err)
	}
	return (&net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}).String(), nil
}
