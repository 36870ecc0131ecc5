package sim

import (
	"container/heap"
	"errors"
	"fmt"
)

// ErrCausality is returned when an event is scheduled before the current clock.
var ErrCausality = errors.New("causality violation")

// Handle identifies a scheduled event for cancellation. The zero Handle
// refers to no event (e.g. one discarded past the horizon).
type Handle uint64

type scheduledEvent struct {
	event Event
	seq   uint64 // insertion order, also the Handle
	index int    // position in the heap, maintained by Swap
}

// eventQueue implements heap.Interface and orders events by time, then by
// insertion order. See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*scheduledEvent

func (eq eventQueue) Len() int { return len(eq) }

func (eq eventQueue) Less(i, j int) bool {
	if eq[i].event.Time != eq[j].event.Time {
		return eq[i].event.Time < eq[j].event.Time
	}
	return eq[i].seq < eq[j].seq
}

func (eq eventQueue) Swap(i, j int) {
	eq[i], eq[j] = eq[j], eq[i]
	eq[i].index = i
	eq[j].index = j
}

func (eq *eventQueue) Push(x any) {
	item := x.(*scheduledEvent)
	item.index = len(*eq)
	*eq = append(*eq, item)
}

func (eq *eventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*eq = old[0 : n-1]
	return item
}

// Scheduler holds the pending events and the simulation clock.
// Not thread-safe; each simulation owns one.
type Scheduler struct {
	clock   float64
	horizon float64
	nextSeq uint64
	queue   eventQueue
	pending map[Handle]*scheduledEvent
}

// NewScheduler creates an empty scheduler that discards events after horizon seconds.
func NewScheduler(horizon float64) *Scheduler {
	return &Scheduler{
		horizon: horizon,
		queue:   make(eventQueue, 0),
		pending: make(map[Handle]*scheduledEvent),
	}
}

// Now returns the current simulation time in seconds.
func (s *Scheduler) Now() float64 { return s.clock }

// Horizon returns the simulation length in seconds.
func (s *Scheduler) Horizon() float64 { return s.horizon }

// Len returns the number of pending events.
func (s *Scheduler) Len() int { return len(s.queue) }

// Schedule inserts ev in time order. Events past the horizon are dropped
// silently and get the zero Handle.
func (s *Scheduler) Schedule(ev Event) (Handle, error) {
	if ev.Time < s.clock {
		return 0, fmt.Errorf("%w: %s scheduled at %.9f, clock is %.9f", ErrCausality, ev.Kind, ev.Time, s.clock)
	}
	if ev.Time > s.horizon {
		return 0, nil
	}
	s.nextSeq++
	item := &scheduledEvent{event: ev, seq: s.nextSeq}
	heap.Push(&s.queue, item)
	h := Handle(item.seq)
	s.pending[h] = item
	return h, nil
}

// Cancel removes the event identified by h if it is still pending.
// It reports whether an event was removed.
func (s *Scheduler) Cancel(h Handle) bool {
	item, ok := s.pending[h]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, item.index)
	delete(s.pending, h)
	return true
}

// PopEarliest removes the earliest pending event and advances the clock to
// its time. It returns false when no events remain.
func (s *Scheduler) PopEarliest() (Event, bool) {
	if len(s.queue) == 0 {
		return Event{}, false
	}
	item := heap.Pop(&s.queue).(*scheduledEvent)
	delete(s.pending, Handle(item.seq))
	s.clock = item.event.Time
	return item.event, true
}

// Peek returns the earliest pending event without removing it.
func (s *Scheduler) Peek() (Event, bool) {
	if len(s.queue) == 0 {
		return Event{}, false
	}
	return s.queue[0].event, true
}
