// Command heartchaind is the Coordinator daemon: it wires up the
// registration server (C3), the heartbeat verifier (C4), the liveness
// sweeper (C5), the persistence adapter (C6), and the state cache
// (C7) behind a single process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"heartchain/internal/cache"
	"heartchain/internal/config"
	"heartchain/internal/logging"
	"heartchain/internal/ntpcheck"
	"heartchain/internal/registrar"
	"heartchain/internal/store"
	"heartchain/internal/sweeper"
	"heartchain/internal/verifier"
	realclock "heartchain/internal/clock"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "heartchaind",
		Short: "Heartchain Coordinator daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to coordinator config.yaml")
	return cmd
}

func run(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCoordinator(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storePath := config.ResolveStorePath(configPath, cfg.StorePath)
	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	c := cache.New()
	if err := preloadCache(ctx, c, st); err != nil {
		return fmt.Errorf("preload cache: %w", err)
	}

	clk := realclock.Real{}
	reg := registrar.New(c, st, clk)
	verf := verifier.New(c, st, clk)

	var notifier sweeper.Notifier
	if cfg.NotifyAddr != "" {
		notifier = sweeper.UDPNotifier{Addr: cfg.NotifyAddr}
	}
	sw := sweeper.New(c, st, clk, cfg.DeadTimeout(), notifier)

	if cfg.NTPServer != "" {
		checker := ntpcheck.NewChecker(clk)
		go checker.Run(ctx)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- reg.ListenAndServe(ctx, cfg.TCPAddr()) }()
	go func() { errCh <- verf.ListenAndServe(ctx, cfg.UDPAddr()) }()
	go sw.Run(ctx)

	slog.Info("heartchaind started", "tcp_addr", cfg.TCPAddr(), "udp_addr", cfg.UDPAddr(), "store", storePath)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// preloadCache warms the state cache from the store's current anchors
// and heartbeat rows at startup, so the verifier never needs to fall
// back to the store on its very first datagram for an already
// registered node (spec.md §4.7).
func preloadCache(ctx context.Context, c *cache.Cache, st store.Store) error {
	anchors, err := st.ScanAnchors(ctx)
	if err != nil {
		return fmt.Errorf("scan anchors: %w", err)
	}
	states, err := st.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("scan heartbeat state: %w", err)
	}
	c.Preload(anchors, states)
	slog.Info("cache preloaded", "nodes", len(states))
	return nil
}
