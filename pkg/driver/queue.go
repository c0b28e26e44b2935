// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"context"
	"sync"
)

// DefaultQueueSize is the capacity of the outbound queue
const DefaultQueueSize = 100

// Queue is a bounded FIFO of outbound documents.
//
// When full, Push evicts the oldest entry to make room: a client is better
// served by recent status than by stale status.
type Queue struct {
	mu      sync.Mutex
	items   [][]byte
	size    int
	dropped uint64
	notify  chan struct{}

	// OnDrop, if set, is called with each evicted document
	OnDrop func(doc []byte)
}

// NewQueue creates a queue holding at most size documents
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		items:  make([][]byte, 0, size),
		size:   size,
		notify: make(chan struct{}, 1),
	}
}

// Push appends doc, evicting the oldest entry if the queue is full.
// It reports whether an entry was evicted.
func (q *Queue) Push(doc []byte) bool {
	q.mu.Lock()
	var evicted []byte
	if len(q.items) >= q.size {
		evicted = q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, doc)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	if evicted != nil && q.OnDrop != nil {
		q.OnDrop(evicted)
	}
	return evicted != nil
}

// TryPop removes the oldest document without waiting
func (q *Queue) TryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	doc := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return doc, true
}

// Pop waits for and removes the oldest document
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		if doc, ok := q.TryPop(); ok {
			return doc, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued documents
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of evicted documents
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
