package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbrandt/quicsend/peer"
	"github.com/kbrandt/quicsend/queue"
	"github.com/kbrandt/quicsend/rendezvous"
	"github.com/kbrandt/quicsend/sender"
	"github.com/kbrandt/quicsend/transport"
)

func newSendCmd() *cobra.Command {
	var serverAddr string
	var direct bool

	cmd := &cobra.Command{
		Use:   "send <path>...",
		Short: "Offer one or more files or directories to a waiting receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), args, serverAddr, direct)
		},
	}
	cmd.Flags().StringVarP(&serverAddr, "server-addr", "s", "", "rendezvous server address (host:port); required unless --direct")
	cmd.Flags().BoolVarP(&direct, "direct", "d", false, "skip the rendezvous server: print a ticket the receiver pastes directly")
	return cmd
}

// runSend drives a single outbound transfer: it establishes the
// connection, then wires sender.Callbacks to stdout so the user sees the
// same milestones the state machine passes through, and to a
// context-derived interrupt flag so Ctrl-C stops the transfer between
// chunks instead of killing the process mid-write.
func runSend(ctx context.Context, paths []string, serverAddr string, direct bool) error {
	if !direct && serverAddr == "" {
		return fmt.Errorf("--server-addr is required unless --direct is set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := peer.Options{
		ServerAddr: serverAddr,
		Direct:     direct,
		OnCode: func(code rendezvous.Code) {
			fmt.Printf("pairing code: %s\n", code)
		},
		OnTicket: func(t transport.Ticket) {
			fmt.Printf("ticket: %s\n", t.Encode())
		},
	}
	fmt.Println("waiting for a receiver...")
	conn, kind, err := peer.Connect(ctx, peer.RoleSender, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("connected (%s)\n", kind)

	var interrupted atomic.Bool
	go func() {
		<-ctx.Done()
		interrupted.Store(true)
	}()

	// WriteCallback fires once per 8KiB chunk, on the same goroutine that
	// reads and writes the payload stream; pushing the count onto a queue
	// and printing from a separate goroutine keeps a slow terminal from
	// ever becoming back-pressure on the copy loop.
	progress := queue.New[uint64]()
	var written atomic.Uint64
	printerCtx, stopPrinter := context.WithCancel(context.Background())
	defer stopPrinter()
	go runProgressPrinter(printerCtx, progress, &written)

	snd := sender.New(conn)
	cb := sender.Callbacks{
		WaitForAcceptance: func() { fmt.Println("waiting for the receiver to accept...") },
		Decision: func(accepted bool) {
			if accepted {
				fmt.Println("offer accepted, sending")
			} else {
				fmt.Println("offer rejected")
			}
		},
		InitialProgress: func(rows []sender.ProgressRow) {
			for _, r := range rows {
				fmt.Printf("  %s: %d of %d bytes already present\n", r.Name, r.AlreadySent, r.Total)
			}
		},
		WriteCallback:  func(n uint64) { progress.Push(n) },
		ShouldContinue: func() bool { return !interrupted.Load() },
	}

	ok, err := snd.Send(ctx, paths, cb)
	progress.Close()
	stopPrinter()
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if !ok {
		return fmt.Errorf("send interrupted after %d bytes", written.Load())
	}
	fmt.Printf("sent %d bytes\n", written.Load())
	return nil
}

// runProgressPrinter drains chunk sizes pushed by the write callback,
// accumulates them into total, and prints a running total at most once a
// second until progress is closed or ctx is cancelled.
func runProgressPrinter(ctx context.Context, progress *queue.Queue[uint64], total *atomic.Uint64) {
	lastPrint := time.Time{}
	for {
		chunks := progress.GetAll(ctx)
		if chunks == nil {
			return
		}
		var batch uint64
		for _, n := range chunks {
			batch += n
		}
		sum := total.Add(batch)
		if now := time.Now(); now.Sub(lastPrint) >= time.Second {
			fmt.Printf("  %d bytes sent\n", sum)
			lastPrint = now
		}
	}
}
