// Package datablock is a zero-copy, single-host, inter-process
// shared-memory exchange hub: one producer streams fixed-size records
// through a shared-memory segment (a DataBlock) to any number of
// consumers, with no broker in the data path once consumers have
// located the segment.
//
// Producer and Consumer are the two engines applications use.
// internal/layout defines the bit-exact segment layout; internal/coordinator
// implements the per-slot multi-reader/single-writer protocol;
// internal/recovery implements the out-of-band diagnostic and recovery
// operations exposed by cmd/datablockctl.
package datablock
