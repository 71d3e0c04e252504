// Command quicsend sends and receives files and directories over the
// peer-to-peer transfer protocol implemented by this module. It is the
// direct counterpart of the rendezvous server started by
// quicsend-rendezvous.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "quicsend",
		Short:   "Send or receive files over a direct peer-to-peer connection",
		Version: buildinfo.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := qlog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			qlog.SetLevel(level)
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	root.AddCommand(newSendCmd())
	root.AddCommand(newReceiveCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "quicsend: %v\n", err)
		os.Exit(1)
	}
}
