package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlephTX/datablock"
)

var recoverArgs struct {
	ringCapacity uint32
	slot         int
	action       string
	force        bool
}

var recoverCmd = &cobra.Command{
	Use:   "recover <shm_name>",
	Short: "Force-apply a single recovery action to one slot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runRecover(args[0]))
	},
}

func init() {
	recoverCmd.Flags().Uint32Var(&recoverArgs.ringCapacity, "ring-capacity", 1, "channel's ring capacity")
	recoverCmd.Flags().IntVar(&recoverArgs.slot, "slot", -1, "slot index to act on (required)")
	recoverCmd.Flags().StringVar(&recoverArgs.action, "action", "", "release_writer | release_readers | reset")
	recoverCmd.Flags().BoolVar(&recoverArgs.force, "force", false, "override the live-holder safety check")
	recoverCmd.MarkFlagRequired("slot")
	recoverCmd.MarkFlagRequired("action")
}

func runRecover(shmName string) int {
	if recoverArgs.slot < 0 {
		fmt.Fprintln(os.Stderr, "--slot is required")
		return exitInvalid
	}

	h, err := datablock.AdminAttach(shmName, recoverArgs.ringCapacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
		return exitInvalid
	}
	defer h.Close()

	slotIndex := uint32(recoverArgs.slot)
	if int(slotIndex) >= h.SlotCount() {
		fmt.Fprintf(os.Stderr, "slot %d out of range [0,%d)\n", slotIndex, h.SlotCount())
		return exitInvalid
	}

	var opErr error
	switch recoverArgs.action {
	case "release_writer":
		opErr = h.ReleaseZombieWriter(slotIndex)
	case "release_readers":
		opErr = h.ReleaseZombieReaders(slotIndex, 0, recoverArgs.force)
	case "reset":
		opErr = h.ForceResetSlot(slotIndex, recoverArgs.force)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", recoverArgs.action)
		return exitInvalid
	}

	if opErr == nil {
		fmt.Printf("slot %d: %s applied\n", slotIndex, recoverArgs.action)
		return exitSuccess
	}

	switch kindOf(opErr) {
	case datablock.Unsafe:
		fmt.Fprintf(os.Stderr, "slot %d: unsafe without --force: %v\n", slotIndex, opErr)
		return exitUnsafe
	case datablock.NotStuck:
		fmt.Printf("slot %d: nothing to do\n", slotIndex)
		return exitNoAction
	default:
		fmt.Fprintf(os.Stderr, "slot %d: %v\n", slotIndex, opErr)
		return exitInternal
	}
}

func kindOf(err error) datablock.ErrorKind {
	var dbErr *datablock.Error
	if e, ok := err.(*datablock.Error); ok {
		dbErr = e
	}
	if dbErr == nil {
		return 0
	}
	return dbErr.Kind
}
