// Package comm provides the message transport between partitions.
// Packet contents are opaque to this package.
package comm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tag classifies a packet so the receiving partition can dispatch it.
type Tag int32

var (
	// ErrTimeout is returned by Receive when the timeout elapsed without a packet.
	ErrTimeout = errors.New("receive timed out")
	// ErrInterrupted is returned once the endpoint was closed. It is permanent.
	ErrInterrupted = errors.New("communication interrupted")
)

// Packet is one opaque buffer exchanged between partitions.
type Packet struct {
	Tag    Tag
	Source int
	Data   []byte
}

// Comm is one partition's endpoint.
//
// Receive with timeout <= 0 blocks until a packet arrives or the endpoint is
// closed. Packets from one sender to one receiver are delivered in send order.
type Comm interface {
	PartitionID() int
	NumPartitions() int
	Send(ctx context.Context, pkt Packet, dest int) error
	Receive(timeout time.Duration) (Packet, error)
	TryReceive() (Packet, bool, error)
	Close() error
}

func checkDest(self, n, dest int) error {
	if dest < 0 || dest >= n {
		return fmt.Errorf("destination partition %d out of range [0,%d)", dest, n)
	}
	if dest == self {
		return fmt.Errorf("partition %d cannot send to itself", self)
	}
	return nil
}
