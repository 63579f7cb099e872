package metrics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshotReflectsCounters(t *testing.T) {
	var b Block
	b.TotalSlotsWritten.Add(3)
	b.ChecksumFailures.Add(1)
	b.RecordError(uint64(7), uint64(1234))

	got := b.Snapshot()
	want := Snapshot{
		TotalSlotsWritten: 3,
		ChecksumFailures:  1,
		LastErrorCode:     7,
		LastErrorTimestampNs: 1234,
		ErrorSequence:     1,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordErrorIncrementsSequence(t *testing.T) {
	var b Block
	b.RecordError(1, 100)
	b.RecordError(2, 200)

	got := b.Snapshot()
	if got.ErrorSequence != 2 {
		t.Fatalf("ErrorSequence = %d, want 2", got.ErrorSequence)
	}
	if diff := cmp.Diff(uint64(2), got.LastErrorCode); diff != "" {
		t.Fatalf("LastErrorCode mismatch (-want +got):\n%s", diff)
	}
}
