package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/christopherjohns/parley/internal/config"
	"github.com/christopherjohns/parley/internal/metrics"
	"github.com/christopherjohns/parley/internal/registry"
	"github.com/christopherjohns/parley/internal/server"
	"github.com/christopherjohns/parley/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		addr       string
		configPath string
		staticDir  string
	)

	rootCmd := &cobra.Command{
		Use:   "parley-server",
		Short: "Presence and signaling coordinator for peer-to-peer video rooms",
		Long: `parley-server tracks which participants are in which room and relays
the join/leave handshake events that let clients establish direct peer
connections among themselves. Media never passes through it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Flags win over the config file and environment.
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if staticDir != "" {
				cfg.StaticDir = staticDir
			}
			return run(cfg)
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&staticDir, "static", "", "directory to serve the web client from (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	hub := signaling.NewHub(registry.New(), m)
	go hub.Run(ctx)

	opts := []server.Option{}
	if cfg.StaticDir != "" {
		opts = append(opts, server.WithStaticDir(cfg.StaticDir))
	}
	srv := server.New(cfg.ListenAddr, hub, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()
	log.Printf("Starting parley server on %s", cfg.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
