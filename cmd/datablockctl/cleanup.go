package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlephTX/datablock"
)

var cleanupArgs struct {
	ringCapacity uint32
	timeout      time.Duration
	dryRun       bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <shm_name>",
	Short: "Reap heartbeat slots of consumers that stopped reporting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runCleanup(args[0]))
	},
}

func init() {
	cleanupCmd.Flags().Uint32Var(&cleanupArgs.ringCapacity, "ring-capacity", 1, "channel's ring capacity")
	cleanupCmd.Flags().DurationVar(&cleanupArgs.timeout, "timeout", 30*time.Second, "heartbeat staleness threshold")
	cleanupCmd.Flags().BoolVar(&cleanupArgs.dryRun, "dry-run", false, "report what would be cleaned up without mutating")
}

func runCleanup(shmName string) int {
	h, err := datablock.AdminAttach(shmName, cleanupArgs.ringCapacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
		return exitInvalid
	}
	defer h.Close()

	dead := h.CleanupDeadConsumers(cleanupArgs.timeout, uint64(time.Now().UnixNano()), cleanupArgs.dryRun)
	if len(dead) == 0 {
		fmt.Println("no dead consumers found")
		return exitNoAction
	}

	for _, d := range dead {
		fmt.Printf("heartbeat[%d]: consumer_id=%d last_seen_ns=%d\n", d.HeartbeatIndex, d.ConsumerID, d.LastSeenNs)
	}
	return exitSuccess
}
