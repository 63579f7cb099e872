package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlephTX/datablock"
)

var diagnoseArgs struct {
	ringCapacity uint32
	slot         int
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <shm_name>",
	Short: "Print per-slot RW-coordinator state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDiagnose(args[0]))
	},
}

func init() {
	diagnoseCmd.Flags().Uint32Var(&diagnoseArgs.ringCapacity, "ring-capacity", 1, "channel's ring capacity")
	diagnoseCmd.Flags().IntVar(&diagnoseArgs.slot, "slot", -1, "only print this slot index (-1 for all)")
}

func runDiagnose(shmName string) int {
	h, err := datablock.AdminAttach(shmName, diagnoseArgs.ringCapacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
		return exitInvalid
	}
	defer h.Close()

	elapsed := func(idx uint32) time.Duration { return 0 }
	diags := h.Diagnose(elapsed)

	for _, d := range diags {
		if diagnoseArgs.slot >= 0 && int(d.SlotIndex) != diagnoseArgs.slot {
			continue
		}
		fmt.Printf("slot %d: state=%s write_lock=%d reader_count=%d writer_waiting=%v generation=%d stuck=%v\n",
			d.SlotIndex, d.State, d.WriteLock, d.ReaderCount, d.WriterWaiting, d.Generation, d.IsStuck)
	}
	return exitSuccess
}
