// Package trace provides the external-event trace store replayed by the ideal
// synchronization protocol. A trace file holds fixed-size binary records,
// read front to back with no header.
package trace

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/inference-sim/parsim/sim"
)

// RecordSize is the on-disk size of one ExternalEvent:
// little-endian int64 timestamp followed by int32 source partition.
const RecordSize = 12

// DefaultTableSize is the number of records loaded per disk read (~1.2MB).
const DefaultTableSize = 100000

// ExternalEvent is one previously observed cross-partition event arrival.
type ExternalEvent struct {
	Time            sim.SimTime
	SourcePartition int32
}

func (e ExternalEvent) String() string {
	return fmt.Sprintf("(t=%d src=%d)", e.Time, e.SourcePartition)
}

func encodeRecord(dst []byte, e ExternalEvent) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(e.Time))
	binary.LittleEndian.PutUint32(dst[8:12], uint32(e.SourcePartition))
}

func decodeRecord(src []byte) ExternalEvent {
	return ExternalEvent{
		Time:            sim.SimTime(binary.LittleEndian.Uint64(src[0:8])),
		SourcePartition: int32(binary.LittleEndian.Uint32(src[8:12])),
	}
}

// FileName returns the trace file name of a partition.
func FileName(partitionID int) string {
	return fmt.Sprintf("ispeventlog-%d.dat", partitionID)
}

// PathFor returns the trace path of a partition inside dir.
func PathFor(dir string, partitionID int) string {
	return filepath.Join(dir, FileName(partitionID))
}
