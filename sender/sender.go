// Package sender implements the sending side of a single transfer: a
// state machine driven end to end by Send. It walks one
// side's view of the world and writes the difference to the other side --
// here the destination is a QUIC connection and the "difference" is a
// tree.SendPlanNode.
package sender

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
	"github.com/kbrandt/quicsend/misc"
	"github.com/kbrandt/quicsend/transport"
	"github.com/kbrandt/quicsend/tree"
	"github.com/kbrandt/quicsend/wire"
)

// bufSize is the fixed copy-buffer size for the payload stream.
const bufSize = 8192

// State names the sender's position in the transfer state diagram.
// It exists mainly so tests and logging can observe progress without
// threading extra return values through Send.
type State int

const (
	StateConnecting State = iota
	StateAwaitVersion
	StateAwaitVersionReply
	StateOffering
	StateAwaitAcceptance
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAwaitVersion:
		return "AwaitVersion"
	case StateAwaitVersionReply:
		return "AwaitVersionReply"
	case StateOffering:
		return "Offering"
	case StateAwaitAcceptance:
		return "AwaitAcceptance"
	case StateStreaming:
		return "Streaming"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	case StateInterrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// ProgressRow is one entry of the initial_progress callback: a top-level
// offered path's name, bytes already accounted for by skipping, and its
// total size.
type ProgressRow struct {
	Name        string
	AlreadySent uint64
	Total       uint64
}

// Callbacks is the observational contract a caller hooks into the state
// machine. Any field may be left nil; a nil callback is simply not invoked.
type Callbacks struct {
	WaitForAcceptance func()
	Decision          func(accepted bool)
	InitialProgress   func(rows []ProgressRow)
	WriteCallback     func(n uint64)
	ShouldContinue    func() bool
}

func (c Callbacks) waitForAcceptance() {
	if c.WaitForAcceptance != nil {
		c.WaitForAcceptance()
	}
}

func (c Callbacks) decision(accepted bool) {
	if c.Decision != nil {
		c.Decision(accepted)
	}
}

func (c Callbacks) initialProgress(rows []ProgressRow) {
	if c.InitialProgress != nil {
		c.InitialProgress(rows)
	}
}

func (c Callbacks) writeCallback(n uint64) {
	if c.WriteCallback != nil {
		c.WriteCallback(n)
	}
}

func (c Callbacks) shouldContinue() bool {
	if c.ShouldContinue == nil {
		return true
	}
	return c.ShouldContinue()
}

// ErrFileDoesNotExist is returned by Send when one of the caller-supplied
// paths cannot be stat'd.
type ErrFileDoesNotExist struct {
	Path string
	Err  error
}

func (e *ErrFileDoesNotExist) Error() string {
	return fmt.Sprintf("sender: %s does not exist: %v", e.Path, e.Err)
}

func (e *ErrFileDoesNotExist) Unwrap() error { return e.Err }

// ErrRejected is returned when the receiver declines the offer.
type ErrRejected struct{}

func (*ErrRejected) Error() string { return "sender: receiver rejected the offer" }

// Sender drives one outbound transfer over conn. The zero value is not
// usable; build one with New.
type Sender struct {
	conn  transport.Conn
	state State
}

// New wraps an established transport.Conn for a single send.
func New(conn transport.Conn) *Sender {
	return &Sender{conn: conn, state: StateConnecting}
}

// State reports the sender's current position in the state diagram.
func (s *Sender) State() State { return s.state }

// Send runs the full state machine for paths against cb, returning
// (true, nil) on a fully streamed transfer, (false, nil) on a cooperative
// interruption (should_continue returning false), and (false, err) on any
// other failure, including rejection.
func (s *Sender) Send(ctx context.Context, paths []string, cb Callbacks) (bool, error) {
	offered, err := s.offer(paths)
	if err != nil {
		s.state = StateFailed
		return false, err
	}

	s.state = StateAwaitVersion
	if err := s.handshake(ctx); err != nil {
		s.state = StateFailed
		return false, err
	}

	s.state = StateOffering
	skips, err := s.exchangeOffer(ctx, offered, cb)
	if err != nil {
		s.state = StateFailed
		return false, err
	}
	if skips == nil {
		s.state = StateClosed
		return false, &ErrRejected{}
	}

	plans := make([]*tree.SendPlanNode, len(offered))
	rows := make([]ProgressRow, len(offered))
	for i, e := range offered {
		plans[i] = tree.RemoveSkipped(e, skips[i])
		var already uint64
		if plans[i] != nil {
			already = e.TotalSize() - plans[i].TotalSize()
		} else {
			already = e.TotalSize()
		}
		rows[i] = ProgressRow{Name: e.Name, AlreadySent: already, Total: e.TotalSize()}
	}
	cb.initialProgress(rows)

	s.state = StateStreaming
	ok, err := s.streamPayload(ctx, paths, plans, cb)
	if err != nil {
		s.state = StateFailed
		return false, err
	}
	if !ok {
		s.state = StateInterrupted
		return false, nil
	}

	s.state = StateDraining
	if err := s.conn.CloseWithDrain(ctx); err != nil {
		return true, fmt.Errorf("sender: drain: %w", err)
	}
	s.state = StateClosed
	return true, nil
}

// offeredJob pairs a top-level path with its position in the caller's list,
// so the worker pool below can write results back in order despite running
// out of order.
type offeredJob struct {
	idx  int
	path string
}

// offer builds the offered tree for each top-level path, one worker per
// path up to a small cap: stat+walk of unrelated
// trees has no ordering dependency, so there is no reason to serialize it.
func (s *Sender) offer(paths []string) ([]*tree.Entry, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	entries := make([]*tree.Entry, len(paths))
	jobs := make(chan offeredJob, len(paths))
	for i, p := range paths {
		jobs <- offeredJob{idx: i, path: p}
	}
	close(jobs)

	work := func(jobs chan offeredJob, errs chan error) {
		for j := range jobs {
			if _, err := os.Stat(j.path); err != nil {
				errs <- &ErrFileDoesNotExist{Path: j.path, Err: err}
				continue
			}
			e, err := tree.Build(j.path)
			if err != nil {
				errs <- fmt.Errorf("sender: build offered tree for %s: %w", j.path, err)
				continue
			}
			entries[j.idx] = e
		}
	}

	var mu sync.Mutex
	var firstErr error
	handleError := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	numWorkers := len(paths)
	if numWorkers > 8 {
		numWorkers = 8
	}
	misc.DoConcurrently(work, handleError, jobs, numWorkers)
	if firstErr != nil {
		return nil, firstErr
	}
	return entries, nil
}

func (s *Sender) handshake(ctx context.Context) error {
	if err := s.writeMessage(ctx, wire.ConnRequest{Version: buildinfo.Version}); err != nil {
		return err
	}
	s.state = StateAwaitVersionReply
	msg, err := s.readMessage(ctx)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case wire.Ok:
		return nil
	case wire.WrongVersion:
		return fmt.Errorf("sender: version rejected, server expects %s", m.Expected)
	default:
		return &wire.ErrUnexpectedMessage{Got: tagOf(msg)}
	}
}

// exchangeOffer sends FileInfo and returns the per-top-level skip list, or
// nil skips (with nil error) if the receiver rejected.
func (s *Sender) exchangeOffer(ctx context.Context, offered []*tree.Entry, cb Callbacks) ([]*tree.SkipNode, error) {
	if err := s.writeMessage(ctx, wire.FileInfo{Files: offered}); err != nil {
		return nil, err
	}
	cb.waitForAcceptance()

	s.state = StateAwaitAcceptance
	msg, err := s.readMessage(ctx)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case wire.RejectFiles:
		cb.decision(false)
		return nil, nil
	case wire.AcceptFilesSkip:
		if len(m.Files) != len(offered) {
			return nil, fmt.Errorf("sender: accept reply has %d entries, offered %d", len(m.Files), len(offered))
		}
		cb.decision(true)
		return m.Files, nil
	default:
		return nil, &wire.ErrUnexpectedMessage{Got: tagOf(msg)}
	}
}

func (s *Sender) streamPayload(ctx context.Context, paths []string, plans []*tree.SendPlanNode, cb Callbacks) (bool, error) {
	stream, err := s.conn.OpenUniStream(ctx)
	if err != nil {
		return false, fmt.Errorf("sender: open payload stream: %w", err)
	}
	gz := gzip.NewWriter(stream)
	for i, plan := range plans {
		if plan == nil {
			continue
		}
		ok, err := s.writeNode(gz, paths[i], plan, cb)
		if err != nil {
			_ = gz.Close()
			_ = closeWriteCloser(stream)
			return false, err
		}
		if !ok {
			_ = gz.Close()
			_ = closeWriteCloser(stream)
			return false, nil
		}
	}
	if err := gz.Close(); err != nil {
		return false, fmt.Errorf("sender: flush payload stream: %w", err)
	}
	if err := closeWriteCloser(stream); err != nil {
		return false, fmt.Errorf("sender: close payload stream: %w", err)
	}
	return true, nil
}

// writeNode copies one SendPlanNode subtree's file bytes to w, mapping
// plan nodes back to filesystem paths by joining child names onto osPath,
// with the top-level node itself matched to paths by index.
func (s *Sender) writeNode(w io.Writer, osPath string, n *tree.SendPlanNode, cb Callbacks) (bool, error) {
	if n.IsDir {
		for _, c := range n.Children {
			ok, err := s.writeNode(w, filepath.Join(osPath, c.Name), c, cb)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}

	f, err := os.Open(osPath)
	if err != nil {
		return false, fmt.Errorf("sender: open %s: %w", osPath, err)
	}
	defer func() { _ = f.Close() }()
	if n.Skip > 0 {
		if _, err := f.Seek(int64(n.Skip), io.SeekStart); err != nil {
			return false, fmt.Errorf("sender: seek %s: %w", osPath, err)
		}
	}

	remaining := n.Size - n.Skip
	buf := make([]byte, bufSize)
	for remaining > 0 {
		want := uint64(bufSize)
		if remaining < want {
			want = remaining
		}
		n2, err := io.ReadFull(f, buf[:want])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, fmt.Errorf("sender: read %s: file is shorter than its offered size", osPath)
		}
		if err != nil {
			return false, fmt.Errorf("sender: read %s: %w", osPath, err)
		}
		if _, err := w.Write(buf[:n2]); err != nil {
			return false, fmt.Errorf("sender: write payload: %w", err)
		}
		cb.writeCallback(uint64(n2))
		remaining -= uint64(n2)
		if remaining == 0 {
			break
		}
		if !cb.shouldContinue() {
			qlog.Info("sender: interrupted mid-file", "path", osPath)
			return false, nil
		}
	}
	return true, nil
}

func (s *Sender) writeMessage(ctx context.Context, msg wire.Message) error {
	stream, err := s.conn.OpenUniStream(ctx)
	if err != nil {
		return fmt.Errorf("sender: open control stream: %w", err)
	}
	if err := wire.Write(stream, msg); err != nil {
		_ = closeWriteCloser(stream)
		return fmt.Errorf("sender: write %T: %w", msg, err)
	}
	return closeWriteCloser(stream)
}

func (s *Sender) readMessage(ctx context.Context) (wire.Message, error) {
	r, err := s.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("sender: accept control stream: %w", err)
	}
	msg, err := wire.Read(r)
	if err != nil {
		return nil, fmt.Errorf("sender: decode control message: %w", err)
	}
	return msg, nil
}

func closeWriteCloser(w io.WriteCloser) error {
	return w.Close()
}

// tagOf recovers the wire.Tag of an already-decoded message, for building
// ErrUnexpectedMessage without exporting the tag() method itself.
func tagOf(msg wire.Message) wire.Tag {
	switch msg.(type) {
	case wire.ConnRequest:
		return wire.TagConnRequest
	case wire.WrongVersion:
		return wire.TagWrongVersion
	case wire.Ok:
		return wire.TagOk
	case wire.FileInfo:
		return wire.TagFileInfo
	case wire.RejectFiles:
		return wire.TagRejectFiles
	case wire.AcceptFilesSkip:
		return wire.TagAcceptFilesSkip
	default:
		return 0
	}
}
