// Command heartchain is the node-side CLI: it bootstraps a node's
// hash chain, registers its anchor with a Coordinator, and emits
// heartbeats until the chain is spent.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"heartchain/internal/config"
	"heartchain/internal/emitter"
	"heartchain/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor distinguishes a clean chain exhaustion (spec.md §7: the
// node has nothing left to prove liveness with, which is expected end
// of life, not failure) from every other error.
func exitCodeFor(err error) int {
	if errors.Is(err, emitter.ErrChainExhausted) {
		return 0
	}
	if errors.Is(err, emitter.ErrRegistrationFailed) {
		return 2
	}
	return 1
}

func rootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "heartchain",
		Short: "Heartchain node-side liveness emitter",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to node config.yaml")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(bootstrapCmd(&configPath))
	cmd.AddCommand(registerCmd(&configPath))
	cmd.AddCommand(emitCmd(&configPath))
	cmd.AddCommand(runCmd(&configPath))
	return cmd
}

func bootstrapCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate (or load) this node's hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNode(*configPath)
			if err != nil {
				return err
			}
			_, err = emitter.Bootstrap(cfg.NodeID, cfg.DataDir, cfg.ChainLength)
			return err
		},
	}
}

func registerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register this node's chain anchor with the Coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNode(*configPath)
			if err != nil {
				return err
			}
			em, err := emitter.Bootstrap(cfg.NodeID, cfg.DataDir, cfg.ChainLength)
			if err != nil {
				return err
			}
			return em.Register(cmd.Context(), cfg.TCPAddr())
		},
	}
}

func emitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "emit",
		Short: "Emit heartbeats until the chain is exhausted or the process is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadNode(*configPath)
			if err != nil {
				return err
			}
			em, err := emitter.Bootstrap(cfg.NodeID, cfg.DataDir, cfg.ChainLength)
			if err != nil {
				return err
			}
			return em.EmitLoop(ctx, cfg.UDPAddr(), cfg.EmitInterval())
		},
	}
}

// runCmd bundles bootstrap + register + emit into a single foreground
// process, the shape most deployments actually want (spec.md §7's
// supervision note leaves restart policy to the process manager —
// this just does the one run end to end).
func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bootstrap, register, and emit in one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadNode(*configPath)
			if err != nil {
				return err
			}
			if cfg.NodeID == "" {
				return fmt.Errorf("node_id must be set in config")
			}

			em, err := emitter.Bootstrap(cfg.NodeID, cfg.DataDir, cfg.ChainLength)
			if err != nil {
				return err
			}
			if err := em.Register(ctx, cfg.TCPAddr()); err != nil {
				return err
			}
			return em.EmitLoop(ctx, cfg.UDPAddr(), cfg.EmitInterval())
		},
	}
}
