package comm

import (
	"context"
	"fmt"
	"time"
)

// Hub connects a fixed number of in-process partitions. Each partition gets
// its own Endpoint; endpoints exchange packets through unbounded inboxes, so
// Send never blocks.
type Hub struct {
	inboxes []*inbox
}

// NewHub creates a hub for n partitions.
func NewHub(n int) *Hub {
	h := &Hub{inboxes: make([]*inbox, n)}
	for i := range h.inboxes {
		h.inboxes[i] = newInbox()
	}
	return h
}

// Endpoint returns the communication endpoint of partition id.
func (h *Hub) Endpoint(id int) *HubEndpoint {
	if id < 0 || id >= len(h.inboxes) {
		panic(fmt.Sprintf("hub: partition %d out of range [0,%d)", id, len(h.inboxes)))
	}
	return &HubEndpoint{hub: h, id: id}
}

// Close interrupts every endpoint.
func (h *Hub) Close() {
	for _, in := range h.inboxes {
		in.close()
	}
}

// HubEndpoint is the Comm of one partition attached to a Hub.
type HubEndpoint struct {
	hub *Hub
	id  int
}

var _ Comm = (*HubEndpoint)(nil)

func (e *HubEndpoint) PartitionID() int   { return e.id }
func (e *HubEndpoint) NumPartitions() int { return len(e.hub.inboxes) }

// Send copies pkt into the destination inbox, stamping this endpoint as source.
func (e *HubEndpoint) Send(ctx context.Context, pkt Packet, dest int) error {
	if err := checkDest(e.id, len(e.hub.inboxes), dest); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	pkt.Source = e.id
	pkt.Data = append([]byte(nil), pkt.Data...)
	if err := e.hub.inboxes[dest].put(pkt); err != nil {
		return fmt.Errorf("send to partition %d: %w", dest, err)
	}
	return nil
}

func (e *HubEndpoint) Receive(timeout time.Duration) (Packet, error) {
	return e.hub.inboxes[e.id].take(timeout)
}

func (e *HubEndpoint) TryReceive() (Packet, bool, error) {
	return e.hub.inboxes[e.id].tryTake()
}

// Close interrupts this endpoint's receiver. Peers sending to it get ErrInterrupted.
func (e *HubEndpoint) Close() error {
	e.hub.inboxes[e.id].close()
	return nil
}
