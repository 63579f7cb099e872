// Command brokerd hosts the channel discovery protocol: producers
// register a channel's shared-memory name, consumers look it up, both
// over one WebSocket round-trip per request.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AlephTX/datablock/broker"
	"github.com/AlephTX/datablock/internal/logging"
)

var rootArgs struct {
	addr         string
	registryPath string
	logLevel     string
}

var rootCmd = &cobra.Command{
	Use:   "brokerd",
	Short: "DataBlock discovery broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&rootArgs.addr, "addr", ":7777", "listen address")
	rootCmd.Flags().StringVar(&rootArgs.registryPath, "registry", "registry.jsonc", "path to the persisted registry file")
	rootCmd.Flags().StringVar(&rootArgs.logLevel, "log-level", "info", "debug | info | warn | error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logging.New(rootArgs.logLevel)
	if err != nil {
		return fmt.Errorf("brokerd: build logger: %w", err)
	}
	log = log.Named("brokerd")

	registry := broker.NewRegistry(rootArgs.registryPath)
	if err := registry.Load(); err != nil {
		return fmt.Errorf("brokerd: load registry: %w", err)
	}

	server := broker.NewServer(registry, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infow("listening", "addr", rootArgs.addr)
	if err := broker.Run(ctx, rootArgs.addr, server); err != nil && ctx.Err() == nil {
		return fmt.Errorf("brokerd: serve: %w", err)
	}
	log.Infow("shutdown complete")
	return nil
}
