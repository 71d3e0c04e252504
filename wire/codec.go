package wire

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/kbrandt/quicsend/internal/codec"
)

// Encode serializes msg using the protocol's compact binary encoding. It
// does not compress; Write does that.
func Encode(msg Message) []byte {
	w := codec.NewWriter()
	w.WriteUint8(uint8(msg.tag()))
	switch m := msg.(type) {
	case ConnRequest:
		w.WriteString(m.Version)
	case WrongVersion:
		w.WriteString(m.Expected)
	case Ok:
	case FileInfo:
		w.WriteUint32(uint32(len(m.Files)))
		for _, e := range m.Files {
			encodeEntry(w, e)
		}
	case RejectFiles:
	case AcceptFilesSkip:
		w.WriteUint32(uint32(len(m.Files)))
		for _, s := range m.Files {
			encodeOptionalSkipNode(w, s)
		}
	default:
		panic(fmt.Sprintf("wire: unknown message type %T", msg))
	}
	return w.Bytes()
}

// Decode parses the compact binary encoding of a Message.
func Decode(buf []byte) (Message, error) {
	r := codec.NewReader(buf)
	tagByte, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("wire: decode tag: %w", err)
	}
	var msg Message
	switch Tag(tagByte) {
	case TagConnRequest:
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		msg = ConnRequest{Version: v}
	case TagWrongVersion:
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		msg = WrongVersion{Expected: v}
	case TagOk:
		msg = Ok{}
	case TagFileInfo:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		entries, err := decodeEntries(r, n)
		if err != nil {
			return nil, err
		}
		msg = FileInfo{Files: entries}
	case TagRejectFiles:
		msg = RejectFiles{}
	case TagAcceptFilesSkip:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		nodes, err := decodeOptionalSkipNodes(r, n)
		if err != nil {
			return nil, err
		}
		msg = AcceptFilesSkip{Files: nodes}
	default:
		return nil, fmt.Errorf("wire: decode: unknown tag %d", tagByte)
	}
	if !r.Done() {
		return nil, fmt.Errorf("wire: decode: trailing bytes after %T", msg)
	}
	return msg, nil
}

// Write encodes msg, gzip-compresses it, and writes it to w, flushing the
// gzip writer so the caller can half-close the substream immediately
// after.
func Write(w io.Writer, msg Message) error {
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(Encode(msg)); err != nil {
		return fmt.Errorf("wire: compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("wire: compress: %w", err)
	}
	return nil
}

// Read consumes r to EOF, gzip-decompresses it, and decodes the resulting
// Message. r is expected to be exactly one accepted unidirectional
// substream.
func Read(r io.Reader) (Message, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("wire: decompress: %w", err)
	}
	defer func() { _ = gz.Close() }()
	raw, err := codec.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("wire: decompress: %w", err)
	}
	return Decode(raw)
}
