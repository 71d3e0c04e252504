package wire_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/kbrandt/quicsend/tree"
	"github.com/kbrandt/quicsend/wire"
)

func roundTrip(t *testing.T, msg wire.Message) wire.Message {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.Write(&buf, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := wire.Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestRoundTripEveryVariant(t *testing.T) {
	offered := []*tree.Entry{
		tree.File("hello.txt", 13),
		tree.Dir("sub", tree.File("a", 1), tree.File("b", 2)),
	}
	cases := []wire.Message{
		wire.ConnRequest{Version: "0.4.0"},
		wire.WrongVersion{Expected: "0.4.0"},
		wire.Ok{},
		wire.FileInfo{Files: offered},
		wire.RejectFiles{},
		wire.AcceptFilesSkip{Files: []*tree.SkipNode{
			nil,
			{Name: "sub", IsDir: true, Children: []*tree.SkipNode{
				{Name: "a", Skip: 1},
			}},
		}},
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !reflect.DeepEqual(got, c) {
			t.Errorf("round trip mismatch:\n got  %#v\n want %#v", got, c)
		}
	}
}

func TestDecodeUnknownTagOrTruncated(t *testing.T) {
	if _, err := wire.Decode([]byte{0xFF}); err == nil {
		t.Error("expected decode error for unknown tag")
	}
	if _, err := wire.Decode(nil); err == nil {
		t.Error("expected decode error for empty buffer")
	}
}

func TestReadMalformedGzip(t *testing.T) {
	if _, err := wire.Read(bytes.NewReader([]byte("not gzip"))); err == nil {
		t.Error("expected error for non-gzip input")
	}
}
