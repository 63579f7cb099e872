// Command datablock-produce is a minimal end-to-end producer: it
// creates a channel segment, writes an incrementing payload into each
// slot on a fixed interval, and logs what it did. It exists as a
// runnable doc for the Producer API.
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
		channel  = flag.String("channel", "datablock.example", "channel name")
		capacity = flag.Uint("ring-capacity", 4, "ring capacity")
		interval = flag.Duration("interval", 200*time.Millisecond, "write interval")
		count    = flag.Int("count", 20, "number of slots to write before exiting")
	)
	flag.Parse()

	log, err := logging.New("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg := datablock.Config{
		RingCapacity:   uint32(*capacity),
		UnitSize:       datablock.UnitSize4KiB,
		ChecksumPolicy: datablock.ChecksumEnforced,
	}

	p, err := datablock.Create(*channel, cfg, datablock.WithLogger(log.Named("producer")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "create: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()
	defer p.Unlink()

	for i := 0; i < *count; i++ {
		err := datablock.WithWrite(p, time.Second, func(h *datablock.WriteHandle) (int, error) {
			payload := h.Payload()
			binary.LittleEndian.PutUint64(payload, uint64(i))
			return 8, nil
		})
		if err != nil {
			log.Errorw("write failed", "error", err)
			continue
		}
		log.Infow("committed", "slot", i)
		time.Sleep(*interval)
	}
}
