// Implements the PacketQueue, which holds the packets an ONU has accepted
// but not yet transmitted upstream. Packets are enqueued on arrival.

package sim

import (
	"fmt"
	"strings"
)

// Packet is one queued frame.
type Packet struct {
	Arrival float64 // time the packet entered the queue (s)
	Size    int64   // bits
}

// PacketQueue is a bounded FIFO of packets. Occupancy is tracked in bits.
type PacketQueue struct {
	queue    []Packet
	bits     int64
	capacity int64 // bits; 0 = unbounded
}

// NewPacketQueue creates a queue holding at most capacity bits (0 = unbounded).
func NewPacketQueue(capacity int64) *PacketQueue {
	return &PacketQueue{capacity: capacity}
}

// Admit appends p if it fits and reports whether it did. A rejected packet
// leaves the queue unchanged.
func (pq *PacketQueue) Admit(p Packet) bool {
	if pq.capacity > 0 && pq.bits+p.Size > pq.capacity {
		return false
	}
	pq.queue = append(pq.queue, p)
	pq.bits += p.Size
	return true
}

func (pq *PacketQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, p := range pq.queue {
		fmt.Fprintf(&sb, "%d@%.9f", p.Size, p.Arrival)
		if i < len(pq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of queued packets.
func (pq *PacketQueue) Len() int {
	return len(pq.queue)
}

// Bits returns the queue occupancy in bits.
func (pq *PacketQueue) Bits() int64 {
	return pq.bits
}

// Capacity returns the queue capacity in bits (0 = unbounded).
func (pq *PacketQueue) Capacity() int64 {
	return pq.capacity
}

// Peek returns the packet at the front of the queue without removing it.
func (pq *PacketQueue) Peek() (Packet, bool) {
	if len(pq.queue) == 0 {
		return Packet{}, false
	}
	return pq.queue[0], true
}

// Dequeue removes the packet at the front of the queue.
func (pq *PacketQueue) Dequeue() (Packet, error) {
	if len(pq.queue) == 0 {
		return Packet{}, fmt.Errorf("dequeue from empty queue: %w", ErrInvariant)
	}
	p := pq.queue[0]
	pq.queue = pq.queue[1:]
	pq.bits -= p.Size
	if pq.bits < 0 {
		return p, fmt.Errorf("queue occupancy %d bits after dequeue: %w", pq.bits, ErrInvariant)
	}
	return p, nil
}
