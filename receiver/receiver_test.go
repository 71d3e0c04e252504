package receiver_test

import (
	"context"
	"testing"
	"time"

	"github.com/kbrandt/quicsend/receiver"
	"github.com/kbrandt/quicsend/transport/transporttest"
	"github.com/kbrandt/quicsend/tree"
	"github.com/kbrandt/quicsend/wire"
)

func TestCheckVersionRejectsIncompatiblePeer(t *testing.T) {
	peerConn, receiverConn := transporttest.NewPipePair()

	send := func(msg wire.Message) {
		s, err := peerConn.OpenUniStream(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if err := wire.Write(s, msg); err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
	read := func() wire.Message {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r, err := peerConn.AcceptUniStream(ctx)
		if err != nil {
			t.Fatal(err)
		}
		msg, err := wire.Read(r)
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}

	done := make(chan error, 1)
	go func() {
		rcv := receiver.New(receiverConn, func([]*tree.Entry) (string, bool) {
			t.Error("decide callback should not run after a version rejection")
			return "", false
		})
		_, err := rcv.Receive(context.Background(), receiver.Callbacks{})
		done <- err
	}()

	send(wire.ConnRequest{Version: "99.0.0"})
	reply := read()
	wv, ok := reply.(wire.WrongVersion)
	if !ok {
		t.Fatalf("reply = %#v, want WrongVersion", reply)
	}
	if wv.Expected == "" {
		t.Error("WrongVersion.Expected is empty")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for an incompatible version")
		}
		if _, is := err.(*receiver.ErrWrongVersion); !is {
			t.Errorf("err = %v (%T), want *ErrWrongVersion", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive never returned")
	}
}
