package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbrandt/quicsend/peer"
	"github.com/kbrandt/quicsend/receiver"
	"github.com/kbrandt/quicsend/tree"
)

func newReceiveCmd() *cobra.Command {
	var serverAddr string
	var direct bool
	var output string
	var overwrite bool
	var autoAccept bool

	cmd := &cobra.Command{
		Use:   "receive <code-or-ticket>",
		Short: "Accept a transfer offered by a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd.Context(), args[0], serverAddr, direct, output, overwrite, autoAccept)
		},
	}
	cmd.Flags().StringVarP(&serverAddr, "server-addr", "s", "", "rendezvous server address (host:port); required unless --direct")
	cmd.Flags().BoolVarP(&direct, "direct", "d", false, "skip the rendezvous server: the argument is a ticket, not a pairing code")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "destination directory")
	cmd.Flags().BoolVarP(&overwrite, "overwrite", "f", false, "ignore any partial destination file instead of resuming it")
	cmd.Flags().BoolVarP(&autoAccept, "auto-accept", "y", false, "accept the offer without prompting")
	return cmd
}

func runReceive(ctx context.Context, codeOrTicket, serverAddr string, direct bool, output string, overwrite, autoAccept bool) error {
	if !direct && serverAddr == "" {
		return fmt.Errorf("--server-addr is required unless --direct is set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := peer.Options{
		ServerAddr: serverAddr,
		Direct:     direct,
	}
	if direct {
		opts.Ticket = codeOrTicket
	} else {
		opts.Code = codeOrTicket
	}

	fmt.Println("connecting...")
	conn, kind, err := peer.Connect(ctx, peer.RoleReceiver, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("connected (%s)\n", kind)

	decide := func(offered []*tree.Entry) (string, bool) {
		fmt.Println("offered:")
		for _, e := range offered {
			fmt.Printf("  %s (%d bytes)\n", e.Name, e.TotalSize())
		}
		if !autoAccept && !confirm("accept? [y/N] ") {
			return "", false
		}
		return output, true
	}

	var interrupted atomic.Bool
	go func() {
		<-ctx.Done()
		interrupted.Store(true)
	}()

	rcv := receiver.New(conn, decide, receiver.WithResume(!overwrite))
	cb := receiver.Callbacks{
		ShouldContinue: func() bool { return !interrupted.Load() },
	}

	ok, err := rcv.Receive(ctx, cb)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if !ok {
		if rcv.State() == receiver.StateInterrupted {
			return fmt.Errorf("receive interrupted")
		}
		fmt.Println("offer declined")
		return nil
	}
	fmt.Println("transfer complete")
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
