// Package receiver implements the receiving side of a single transfer:
// a state machine driven end to end by Receive.
package receiver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
	"github.com/kbrandt/quicsend/transport"
	"github.com/kbrandt/quicsend/tree"
	"github.com/kbrandt/quicsend/wire"
)

const bufSize = 8192

// State names the receiver's position in the transfer state diagram.
type State int

const (
	StateConnected State = iota
	StateCheckVersion
	StateAwaitOffer
	StateDeciding
	StatePlanning
	StateReceiving
	StateClosed
	StateFailed
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateCheckVersion:
		return "CheckVersion"
	case StateAwaitOffer:
		return "AwaitOffer"
	case StateDeciding:
		return "Deciding"
	case StatePlanning:
		return "Planning"
	case StateReceiving:
		return "Receiving"
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

// Decide is the accept/reject callback: given the offered
// top-level entries, it returns a destination directory (acceptance) or
// ok=false (rejection). The destination is where each top-level entry's
// own name is created, same convention Send uses for its source paths.
type Decide func(offered []*tree.Entry) (destDir string, ok bool)

// Callbacks mirrors the sender's observational contract on the receive
// side: only ShouldContinue has meaning here.
type Callbacks struct {
	ShouldContinue func() bool
}

func (c Callbacks) shouldContinue() bool {
	if c.ShouldContinue == nil {
		return true
	}
	return c.ShouldContinue()
}

// ErrWrongVersion is returned when this build rejects the sender's
// announced version.
type ErrWrongVersion struct {
	Got string
}

func (e *ErrWrongVersion) Error() string {
	return fmt.Sprintf("receiver: incompatible sender version %s", e.Got)
}

// Receiver drives one inbound transfer over conn.
type Receiver struct {
	conn   transport.Conn
	state  State
	resume bool
	decide Decide
}

// Options configures a Receiver beyond its required arguments.
type Options func(*Receiver)

// WithResume enables resume planning (tree.Skippable against any locally
// existing destination entries); without it, every AcceptFilesSkip entry
// is nil and the full tree is always re-sent.
func WithResume(enabled bool) Options {
	return func(r *Receiver) { r.resume = enabled }
}

// New wraps an established transport.Conn for a single receive, with
// decide as the required accept/reject callback.
func New(conn transport.Conn, decide Decide, opts ...Options) *Receiver {
	r := &Receiver{conn: conn, decide: decide, state: StateConnected}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// State reports the receiver's current position in the state diagram.
func (r *Receiver) State() State { return r.state }

// Receive runs the full state machine, returning (true, nil) when the
// payload was fully received, (false, nil) on rejection or a cooperative
// interruption, and (false, err) on any other failure.
func (r *Receiver) Receive(ctx context.Context, cb Callbacks) (bool, error) {
	r.state = StateCheckVersion
	if err := r.checkVersion(ctx); err != nil {
		r.state = StateFailed
		return false, err
	}

	r.state = StateAwaitOffer
	offered, err := r.awaitOffer(ctx)
	if err != nil {
		r.state = StateFailed
		return false, err
	}

	r.state = StateDeciding
	destDir, ok := r.decide(offered)
	if !ok {
		if err := r.writeMessage(ctx, wire.RejectFiles{}); err != nil {
			r.state = StateFailed
			return false, err
		}
		r.state = StateClosed
		return false, nil
	}

	r.state = StatePlanning
	plans, err := r.plan(ctx, offered, destDir)
	if err != nil {
		r.state = StateFailed
		return false, err
	}

	r.state = StateReceiving
	ok, err = r.receivePayload(ctx, destDir, offered, plans, cb)
	if err != nil {
		r.state = StateFailed
		return false, err
	}
	if !ok {
		r.closeNow()
		r.state = StateInterrupted
		return false, nil
	}
	r.closeNow()
	r.state = StateClosed
	return true, nil
}

// closeNow drains and closes the connection immediately: the receiver has
// nothing left to send or wait for once the payload is consumed (or
// abandoned), unlike the sender side, which waits for the peer to close
// first.
func (r *Receiver) closeNow() {
	closed, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.conn.CloseWithDrain(closed); err != nil {
		qlog.Warn("receiver: close", "err", err)
	}
}

func (r *Receiver) checkVersion(ctx context.Context) error {
	msg, err := r.readMessage(ctx)
	if err != nil {
		return err
	}
	req, ok := msg.(wire.ConnRequest)
	if !ok {
		return &wire.ErrUnexpectedMessage{Got: tagOf(msg)}
	}
	if !buildinfo.CompatibleMajor(req.Version) {
		_ = r.writeMessage(ctx, wire.WrongVersion{Expected: buildinfo.Version})
		return &ErrWrongVersion{Got: req.Version}
	}
	return r.writeMessage(ctx, wire.Ok{})
}

func (r *Receiver) awaitOffer(ctx context.Context) ([]*tree.Entry, error) {
	msg, err := r.readMessage(ctx)
	if err != nil {
		return nil, err
	}
	fi, ok := msg.(wire.FileInfo)
	if !ok {
		return nil, &wire.ErrUnexpectedMessage{Got: tagOf(msg)}
	}
	return fi.Files, nil
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

// plan computes, per top-level offered entry, the local skip tree (or nil
// under resume==false or when nothing local exists), sends AcceptFilesSkip,
// and returns the send plan the payload phase will follow -- the same
// computation the sender performs, done independently here so the
// receiver knows where every incoming byte belongs.
func (r *Receiver) plan(ctx context.Context, offered []*tree.Entry, destDir string) ([]*tree.SendPlanNode, error) {
	skips := make([]*tree.SkipNode, len(offered))
	plans := make([]*tree.SendPlanNode, len(offered))
	for i, e := range offered {
		destPath := filepath.Join(destDir, e.Name)
		var skip *tree.SkipNode
		if r.resume {
			local, err := tree.BuildOptional(destPath)
			if err != nil {
				return nil, fmt.Errorf("receiver: probe %s: %w", destPath, err)
			}
			if local != nil {
				skip = tree.Skippable(e, local)
			}
		}
		skips[i] = skip
		plans[i] = tree.RemoveSkipped(e, skip)
	}
	if err := r.writeMessage(ctx, wire.AcceptFilesSkip{Files: skips}); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *Receiver) receivePayload(ctx context.Context, destDir string, offered []*tree.Entry, plans []*tree.SendPlanNode, cb Callbacks) (bool, error) {
	stream, err := r.conn.AcceptUniStream(ctx)
	if err != nil {
		return false, fmt.Errorf("receiver: accept payload stream: %w", err)
	}
	gz, err := gzip.NewReader(stream)
	if err != nil {
		return false, fmt.Errorf("receiver: open payload decompressor: %w", err)
	}
	defer func() { _ = gz.Close() }()

	for i, plan := range plans {
		if plan == nil {
			continue
		}
		ok, err := r.readNode(gz, filepath.Join(destDir, offered[i].Name), plan, cb)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// readNode is the receive-side mirror of sender.writeNode: a depth-first,
// pre-order walk of the same send plan, writing bytes to disk instead of
// to the wire.
func (r *Receiver) readNode(src io.Reader, osPath string, n *tree.SendPlanNode, cb Callbacks) (bool, error) {
	if n.IsDir {
		if err := os.MkdirAll(osPath, 0o755); err != nil {
			return false, fmt.Errorf("receiver: mkdir %s: %w", osPath, err)
		}
		for _, c := range n.Children {
			ok, err := r.readNode(src, filepath.Join(osPath, c.Name), c, cb)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(osPath), 0o755); err != nil {
		return false, fmt.Errorf("receiver: mkdir %s: %w", filepath.Dir(osPath), err)
	}
	f, err := os.OpenFile(osPath, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return false, fmt.Errorf("receiver: open %s: %w", osPath, err)
	}
	defer func() { _ = f.Close() }()
	if n.Skip > 0 {
		if _, err := f.Seek(int64(n.Skip), io.SeekStart); err != nil {
			return false, fmt.Errorf("receiver: seek %s: %w", osPath, err)
		}
	}

	remaining := n.Size - n.Skip
	buf := make([]byte, bufSize)
	for remaining > 0 {
		want := uint64(bufSize)
		if remaining < want {
			want = remaining
		}
		if _, err := io.ReadFull(src, buf[:want]); err != nil {
			return false, fmt.Errorf("receiver: read %s: %w", osPath, err)
		}
		if _, err := f.Write(buf[:want]); err != nil {
			return false, fmt.Errorf("receiver: write %s: %w", osPath, err)
		}
		remaining -= want
		if remaining == 0 {
			break
		}
		if !cb.shouldContinue() {
			qlog.Info("receiver: interrupted mid-file", "path", osPath)
			return false, nil
		}
	}
	if err := f.Sync(); err != nil {
		return false, fmt.Errorf("receiver: fsync %s: %w", osPath, err)
	}
	return true, nil
}

func (r *Receiver) writeMessage(ctx context.Context, msg wire.Message) error {
	stream, err := r.conn.OpenUniStream(ctx)
	if err != nil {
		return fmt.Errorf("receiver: open control stream: %w", err)
	}
	if err := wire.Write(stream, msg); err != nil {
		_ = stream.Close()
		return fmt.Errorf("receiver: write %T: %w", msg, err)
	}
	return stream.Close()
}

func (r *Receiver) readMessage(ctx context.Context) (wire.Message, error) {
	rd, err := r.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("receiver: accept control stream: %w", err)
	}
	msg, err := wire.Read(rd)
	if err != nil {
		return nil, fmt.Errorf("receiver: decode control message: %w", err)
	}
	return msg, nil
}
