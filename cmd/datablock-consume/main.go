// Command datablock-consume attaches to a channel created by
// datablock-produce and prints each slot it reads, using the iterator
// rather than random-access AcquireConsume.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AlephTX/datablock"
	"github.com/AlephTX/datablock/internal/logging"
)

func main() {
	var (
		channel = flag.String("channel", "datablock.example", "channel name")
		timeout = flag.Duration("timeout", 5*time.Second, "TryNext poll timeout")
	)
	flag.Parse()

	log, err := logging.New("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	c, err := datablock.Attach(*channel, [16]byte{}, datablock.WithConsumerLogger(log.Named("consumer")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	it := c.SlotIterator()
	for {
		h, err := it.TryNext(*timeout)
		if err != nil {
			log.Warnw("stopping", "error", err)
			return
		}
		value := binary.LittleEndian.Uint64(h.Payload())
		result, err := c.Release(h)
		log.Infow("read", "slot_id", h.SlotID(), "value", value, "raced", result.Raced, "checksum_ok", result.ChecksumOK, "release_err", err)
	}
}
