package sender_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbrandt/quicsend/receiver"
	"github.com/kbrandt/quicsend/sender"
	"github.com/kbrandt/quicsend/transport/transporttest"
	"github.com/kbrandt/quicsend/tree"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSendReceiveFullTransfer(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()

	writeFile(t, filepath.Join(srcRoot, "a.txt"), []byte("hello world"))
	writeFile(t, filepath.Join(srcRoot, "sub", "b.txt"), make([]byte, 20000))

	senderConn, receiverConn := transporttest.NewPipePair()

	var decisions []bool
	var progress []sender.ProgressRow
	var written uint64

	recvErrCh := make(chan error, 1)
	recvOkCh := make(chan bool, 1)
	go func() {
		rcv := receiver.New(receiverConn, func(offered []*tree.Entry) (string, bool) {
			return dstRoot, true
		})
		ok, err := rcv.Receive(context.Background(), receiver.Callbacks{})
		recvOkCh <- ok
		recvErrCh <- err
	}()

	snd := sender.New(senderConn)
	ok, err := snd.Send(context.Background(), []string{srcRoot}, sender.Callbacks{
		Decision: func(accepted bool) { decisions = append(decisions, accepted) },
		InitialProgress: func(rows []sender.ProgressRow) {
			progress = append(progress, rows...)
		},
		WriteCallback: func(n uint64) { written += n },
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !ok {
		t.Fatal("send reported failure")
	}

	select {
	case rerr := <-recvErrCh:
		if rerr != nil {
			t.Fatalf("receive: %v", rerr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receive never finished")
	}
	if !<-recvOkCh {
		t.Fatal("receive reported failure")
	}

	if len(decisions) != 1 || !decisions[0] {
		t.Errorf("decision callback = %v, want [true]", decisions)
	}
	if written == 0 {
		t.Error("write callback never fired")
	}
	if len(progress) != 1 || progress[0].AlreadySent != 0 {
		t.Errorf("progress = %+v", progress)
	}

	gotA, err := os.ReadFile(filepath.Join(dstRoot, filepath.Base(srcRoot), "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(gotA) != "hello world" {
		t.Errorf("a.txt = %q", gotA)
	}
	info, err := os.Stat(filepath.Join(dstRoot, filepath.Base(srcRoot), "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 20000 {
		t.Errorf("b.txt size = %d, want 20000", info.Size())
	}
}

func TestSendRejected(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "a.txt"), []byte("x"))

	senderConn, receiverConn := transporttest.NewPipePair()

	go func() {
		rcv := receiver.New(receiverConn, func(offered []*tree.Entry) (string, bool) {
			return "", false
		})
		_, _ = rcv.Receive(context.Background(), receiver.Callbacks{})
	}()

	snd := sender.New(senderConn)
	ok, err := snd.Send(context.Background(), []string{srcRoot}, sender.Callbacks{})
	if ok {
		t.Error("expected send to report failure on rejection")
	}
	if _, is := err.(*sender.ErrRejected); !is {
		t.Errorf("err = %v (%T), want *ErrRejected", err, err)
	}
}

func TestSendMissingPath(t *testing.T) {
	senderConn, _ := transporttest.NewPipePair()
	snd := sender.New(senderConn)
	_, err := snd.Send(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, sender.Callbacks{})
	if err == nil {
		t.Fatal("expected an error for a missing path")
	}
	if _, is := err.(*sender.ErrFileDoesNotExist); !is {
		t.Errorf("err = %v (%T), want *ErrFileDoesNotExist", err, err)
	}
}

func TestResumeSkipsExistingBytes(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "a.txt"), []byte("hello world"))
	writeFile(t, filepath.Join(dstRoot, filepath.Base(srcRoot), "a.txt"), []byte("hello"))

	senderConn, receiverConn := transporttest.NewPipePair()

	recvDone := make(chan error, 1)
	go func() {
		rcv := receiver.New(receiverConn, func(offered []*tree.Entry) (string, bool) {
			return dstRoot, true
		}, receiver.WithResume(true))
		_, err := rcv.Receive(context.Background(), receiver.Callbacks{})
		recvDone <- err
	}()

	var progress []sender.ProgressRow
	snd := sender.New(senderConn)
	_, err := snd.Send(context.Background(), []string{srcRoot}, sender.Callbacks{
		InitialProgress: func(rows []sender.ProgressRow) { progress = rows },
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("receive: %v", err)
	}

	if len(progress) != 1 || progress[0].AlreadySent != 5 {
		t.Fatalf("progress = %+v, want AlreadySent=5", progress)
	}
	got, err := os.ReadFile(filepath.Join(dstRoot, filepath.Base(srcRoot), "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Errorf("resumed file = %q, want %q", got, "hello world")
	}
}

func TestInterruptionStopsEarly(t *testing.T) {
	srcRoot := t.TempDir()
	writeFile(t, filepath.Join(srcRoot, "a.txt"), make([]byte, bufferMultiple(3)))

	senderConn, receiverConn := transporttest.NewPipePair()
	go func() {
		rcv := receiver.New(receiverConn, func(offered []*tree.Entry) (string, bool) {
			return t.TempDir(), true
		})
		_, _ = rcv.Receive(context.Background(), receiver.Callbacks{})
	}()

	var calls int
	snd := sender.New(senderConn)
	ok, err := snd.Send(context.Background(), []string{srcRoot}, sender.Callbacks{
		ShouldContinue: func() bool {
			calls++
			return calls < 2
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ok {
		t.Error("expected send to report interruption, not success")
	}
	if snd.State() != sender.StateInterrupted {
		t.Errorf("state = %v, want Interrupted", snd.State())
	}
}

func bufferMultiple(n int) int { return n * 8192 }
