package comm

import (
	"sync"
	"time"
)

// inbox is the receive buffer of one endpoint. It is written by the transport
// (hub senders or gRPC handlers) and read only by the owning partition.
type inbox struct {
	mu     sync.Mutex
	queue  []Packet
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *inbox) put(pkt Packet) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrInterrupted
	}
	q.queue = append(q.queue, pkt)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *inbox) tryTake() (Packet, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) > 0 {
		pkt := q.queue[0]
		q.queue[0] = Packet{}
		q.queue = q.queue[1:]
		return pkt, true, nil
	}
	if q.closed {
		return Packet{}, false, ErrInterrupted
	}
	return Packet{}, false, nil
}

func (q *inbox) take(timeout time.Duration) (Packet, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		pkt, ok, err := q.tryTake()
		if err != nil || ok {
			return pkt, err
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-expired:
			// a packet may have raced the timer
			if pkt, ok, err := q.tryTake(); err != nil || ok {
				return pkt, err
			}
			return Packet{}, ErrTimeout
		}
	}
}

func (q *inbox) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
