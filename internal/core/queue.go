package core

import (
	"github.com/emirpasic/gods/trees/binaryheap"
)

// EventQueue keeps pending events ordered by (time, arrival). Cancelled
// events stay in the heap and are skipped on pop, which keeps Cancel O(1).
type EventQueue struct {
	heap    *binaryheap.Heap
	nextSeq int64
	size    int
}

func NewEventQueue() *EventQueue {
	comparator := func(a, b any) int {
		ea := a.(*Event)
		eb := b.(*Event)

		if ea.Time != eb.Time {
			if ea.Time < eb.Time {
				return -1
			}
			return 1
		}

		return int(ea.seq - eb.seq)
	}

	return &EventQueue{
		heap: binaryheap.NewWith(comparator),
	}
}

func (q *EventQueue) Push(event *Event) {
	event.seq = q.nextSeq
	q.nextSeq += 1

	q.heap.Push(event)
	q.size += 1
}

// Pop returns the earliest live event, or nil if none remain.
func (q *EventQueue) Pop() *Event {
	for {
		value, ok := q.heap.Pop()
		if !ok {
			return nil
		}

		event := value.(*Event)
		if event.cancelled {
			continue
		}

		q.size -= 1
		return event
	}
}

// Cancel withdraws a scheduled event before dispatch.
func (q *EventQueue) Cancel(event *Event) {
	if event == nil || event.cancelled {
		return
	}

	event.cancelled = true
	q.size -= 1
}

func (q *EventQueue) Len() int {
	return q.size
}

func (q *EventQueue) Empty() bool {
	return q.size == 0
}
