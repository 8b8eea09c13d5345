package engine

import (
	"sync"
)

// Entry is one unit of queued work: a node and the inputs it will be called
// with. Inputs may be raw values, *audit.Audit, or audit.MergeGroup.
type Entry struct {
	Node   *Node
	Inputs []any
}

// Queue is a thread-safe FIFO of entries.
//
// The queue is unbounded so cascading joins can enqueue arbitrarily many
// entries without blocking. Enqueue and Unshift are safe from any goroutine;
// the engine's Run loop is the only consumer.
type Queue struct {
	mu   sync.Mutex
	view QueueView
}

// QueueView is the lock-free side of a Queue, handed to Synchronize callbacks.
// Its methods must only be used inside the callback.
type QueueView struct {
	entries []Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{view: QueueView{entries: make([]Entry, 0, 64)}}
}

// Enqueue appends an entry to the back of the queue.
func (q *Queue) Enqueue(node *Node, inputs []any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Enqueue(node, inputs)
}

// Unshift places an entry at the front of the queue.
func (q *Queue) Unshift(node *Node, inputs []any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Unshift(node, inputs)
}

// Dequeue removes and returns the front entry. Returns false if empty.
func (q *Queue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Dequeue()
}

// Clear drains the queue and returns its prior contents in order.
func (q *Queue) Clear() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Clear()
}

// Size returns the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Size()
}

// Concat appends entries in order.
func (q *Queue) Concat(entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.view.Concat(entries)
}

// Entries returns a copy of the queued entries without removing them.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.view.entries))
	copy(out, q.view.entries)
	return out
}

// Synchronize runs fn while holding the queue lock, so a sequence of
// operations such as "check empty, then enqueue" appears as one step.
func (q *Queue) Synchronize(fn func(v *QueueView)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(&q.view)
}

// Enqueue appends an entry to the back of the queue.
func (v *QueueView) Enqueue(node *Node, inputs []any) error {
	if node == nil {
		return NewNotExecutableError(node)
	}
	v.entries = append(v.entries, Entry{Node: node, Inputs: inputs})
	return nil
}

// Unshift places an entry at the front of the queue.
func (v *QueueView) Unshift(node *Node, inputs []any) error {
	if node == nil {
		return NewNotExecutableError(node)
	}
	v.entries = append(v.entries, Entry{})
	copy(v.entries[1:], v.entries)
	v.entries[0] = Entry{Node: node, Inputs: inputs}
	return nil
}

// Dequeue removes and returns the front entry. Returns false if empty.
func (v *QueueView) Dequeue() (Entry, bool) {
	if len(v.entries) == 0 {
		return Entry{}, false
	}

	e := v.entries[0]

	// Nil out the slot so the backing array does not pin the node and its
	// inputs after they leave the queue.
	v.entries[0] = Entry{}

	if len(v.entries) == 1 {
		v.entries = v.entries[:0]
	} else {
		v.entries = v.entries[1:]
	}

	return e, true
}

// Clear drains the queue and returns its prior contents in order.
func (v *QueueView) Clear() []Entry {
	out := v.entries
	v.entries = make([]Entry, 0, 64)
	return out
}

// Size returns the current queue length.
func (v *QueueView) Size() int {
	return len(v.entries)
}

// Concat appends entries in order. Nothing is appended if any entry has
// no node.
func (v *QueueView) Concat(entries []Entry) error {
	for _, e := range entries {
		if e.Node == nil {
			return NewNotExecutableError(e.Node)
		}
	}
	v.entries = append(v.entries, entries...)
	return nil
}
