// Package rendezvous implements the short-code pairing protocol: a tiny
// client<->server message set, used once per peer to learn the other
// side's externally observed UDP socket address before hole punching and
// the QUIC handshake begin.
package rendezvous

import (
	"fmt"

	"github.com/kbrandt/quicsend/internal/codec"
)

// CodeLen is the length in bytes of a pairing code: 8 random ASCII
// characters.
const CodeLen = 8

// CodeAlphabet is the 62-character alphabet pairing codes are drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Code is an 8-byte alphanumeric pairing code.
type Code [CodeLen]byte

func (c Code) String() string { return string(c[:]) }

// ParseCode validates and converts a user-supplied string (e.g. typed or
// pasted from a sender's terminal) into a Code.
func ParseCode(s string) (Code, error) {
	var c Code
	if len(s) != CodeLen {
		return c, fmt.Errorf("rendezvous: code must be %d characters, got %d", CodeLen, len(s))
	}
	copy(c[:], s)
	return c, nil
}

type tag uint8

const (
	tagAnnounce tag = iota + 1
	tagConnect
	tagCode
	tagSocketAddr
	tagWrongVersion
)

// Announce is sent by a waiting sender to request a pairing code.
type Announce struct {
	Version      string
	ExternalAddr string
}

// Connect is sent by a connecting receiver, naming the code it was given
// out of band.
type Connect struct {
	Version      string
	ExternalAddr string
	Code         Code
}

// CodeReply carries the allocated Code back to an announcing sender.
type CodeReply struct {
	Code Code
}

// SocketAddrReply carries the other peer's externally observed address
// back to both sides of a pairing.
type SocketAddrReply struct {
	SocketAddr string
}

// WrongVersionReply is sent when the version policy rejects the peer's
// declared version.
type WrongVersionReply struct {
	Expected string
}

// Message is the union of every rendezvous-protocol variant.
type Message interface {
	rtag() tag
}

func (Announce) rtag() tag          { return tagAnnounce }
func (Connect) rtag() tag           { return tagConnect }
func (CodeReply) rtag() tag         { return tagCode }
func (SocketAddrReply) rtag() tag   { return tagSocketAddr }
func (WrongVersionReply) rtag() tag { return tagWrongVersion }

// Encode serializes msg using the same compact binary primitives as the
// peer wire protocol (internal/codec), uncompressed: rendezvous messages
// are a handful of bytes, not worth gzip framing.
func Encode(msg Message) []byte {
	w := codec.NewWriter()
	w.WriteUint8(uint8(msg.rtag()))
	switch m := msg.(type) {
	case Announce:
		w.WriteString(m.Version)
		w.WriteString(m.ExternalAddr)
	case Connect:
		w.WriteString(m.Version)
		w.WriteString(m.ExternalAddr)
		w.WriteBytes(m.Code[:])
	case CodeReply:
		w.WriteBytes(m.Code[:])
	case SocketAddrReply:
		w.WriteString(m.SocketAddr)
	case WrongVersionReply:
		w.WriteString(m.Expected)
	default:
		panic(fmt.Sprintf("rendezvous: unknown message type %T", msg))
	}
	return w.Bytes()
}

// Decode parses the compact binary encoding produced by Encode.
func Decode(buf []byte) (Message, error) {
	r := codec.NewReader(buf)
	tagByte, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("rendezvous: decode tag: %w", err)
	}
	var msg Message
	switch tag(tagByte) {
	case tagAnnounce:
		version, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		msg = Announce{Version: version, ExternalAddr: addr}
	case tagConnect:
		version, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		codeBytes, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		if len(codeBytes) != CodeLen {
			return nil, fmt.Errorf("rendezvous: decode: bad code length %d", len(codeBytes))
		}
		var code Code
		copy(code[:], codeBytes)
		msg = Connect{Version: version, ExternalAddr: addr, Code: code}
	case tagCode:
		codeBytes, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		if len(codeBytes) != CodeLen {
			return nil, fmt.Errorf("rendezvous: decode: bad code length %d", len(codeBytes))
		}
		var code Code
		copy(code[:], codeBytes)
		msg = CodeReply{Code: code}
	case tagSocketAddr:
		addr, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		msg = SocketAddrReply{SocketAddr: addr}
	case tagWrongVersion:
		expected, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		msg = WrongVersionReply{Expected: expected}
	default:
		return nil, fmt.Errorf("rendezvous: decode: unknown tag %d", tagByte)
	}
	if !r.Done() {
		return nil, fmt.Errorf("rendezvous: decode: trailing bytes after %T", msg)
	}
	return msg, nil
}
