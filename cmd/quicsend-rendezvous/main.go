// Command quicsend-rendezvous runs the short-code pairing server that lets
// two quicsend peers behind NAT find each other's external address. It
// exposes its counters on a Prometheus /metrics endpoint the way zrepl
// exposes its own job metrics.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kbrandt/quicsend/internal/buildinfo"
	"github.com/kbrandt/quicsend/internal/qlog"
	"github.com/kbrandt/quicsend/rendezvous/server"
)

func newRootCmd() *cobra.Command {
	var (
		bindIP           string
		port             int
		metricsAddr      string
		maxConnectionAge time.Duration
		maxConcurrent    int
		logLevel         string
	)

	cmd := &cobra.Command{
		Use:     "quicsend-rendezvous",
		Short:   "Run the quicsend pairing server",
		Version: buildinfo.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := qlog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			qlog.SetLevel(level)
			bindAddr := net.JoinHostPort(bindIP, fmt.Sprintf("%d", port))
			return run(cmd.Context(), bindAddr, metricsAddr, maxConnectionAge, maxConcurrent)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&bindIP, "bind-ip", "b", "0.0.0.0", "IP address to bind the QUIC listener to")
	cmd.Flags().IntVarP(&port, "port", "p", 4433, "UDP port to bind the QUIC listener to")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "address to serve Prometheus metrics on")
	cmd.Flags().DurationVarP(&maxConnectionAge, "max-connection-age", "m", server.DefaultMaxConnectionAge, "how long an Announce waits for a matching Connect before eviction")
	cmd.Flags().IntVarP(&maxConcurrent, "max-concurrent-connections", "c", server.DefaultMaxConcurrentConnections, "maximum number of concurrently waiting senders")
	cmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	return cmd
}

func run(ctx context.Context, bindAddr, metricsAddr string, maxConnectionAge time.Duration, maxConcurrent int) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.New(bindAddr,
		server.WithMaxConnectionAge(maxConnectionAge),
		server.WithMaxConcurrentConnections(maxConcurrent),
	)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	qlog.Info("rendezvous: listening", "addr", s.Addr().String())

	registry := prometheus.NewRegistry()
	for _, c := range s.Metrics() {
		registry.MustRegister(c)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "quicsend-rendezvous: %v\n", err)
		os.Exit(1)
	}
}
