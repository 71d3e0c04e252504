// Package wire implements the peer-to-peer control protocol: the tagged
// message variants and their compact-binary encoding, gzip-wrapped per
// substream. One control message occupies one unidirectional QUIC
// substream; framing comes from the substream's own EOF, not an in-band
// length header.
package wire

import (
	"fmt"

	"github.com/kbrandt/quicsend/tree"
)

// Tag identifies a message variant on the wire.
type Tag uint8

const (
	TagConnRequest Tag = iota + 1
	TagWrongVersion
	TagOk
	TagFileInfo
	TagRejectFiles
	TagAcceptFilesSkip
)

// ConnRequest is sent Sender -> Receiver to open the handshake.
type ConnRequest struct {
	Version string
}

// WrongVersion is sent Receiver -> Sender when the version policy rejects
// ConnRequest.Version.
type WrongVersion struct {
	Expected string
}

// Ok is sent Receiver -> Sender to accept the proposed version.
type Ok struct{}

// FileInfo is sent Sender -> Receiver with the offered tree, one top-level
// entry per caller-supplied path.
type FileInfo struct {
	Files []*tree.Entry
}

// RejectFiles is sent Receiver -> Sender when the accept callback declines
// the offer.
type RejectFiles struct{}

// AcceptFilesSkip is sent Receiver -> Sender with one optional skip tree
// per top-level FileInfo.Files entry, same length and order.
type AcceptFilesSkip struct {
	Files []*tree.SkipNode // nil entry == no skip for that top-level path
}

// Message is the union of every control-protocol variant.
type Message interface {
	tag() Tag
}

func (ConnRequest) tag() Tag      { return TagConnRequest }
func (WrongVersion) tag() Tag     { return TagWrongVersion }
func (Ok) tag() Tag               { return TagOk }
func (FileInfo) tag() Tag         { return TagFileInfo }
func (RejectFiles) tag() Tag      { return TagRejectFiles }
func (AcceptFilesSkip) tag() Tag  { return TagAcceptFilesSkip }

// ErrUnexpectedMessage is returned by callers that received a structurally
// valid but state-machine-inappropriate message variant.
type ErrUnexpectedMessage struct {
	Got Tag
}

func (e *ErrUnexpectedMessage) Error() string {
	return fmt.Sprintf("wire: unexpected message tag %d", e.Got)
}
