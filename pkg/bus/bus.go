// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus couples the protocol drivers to the serial bridge.
//
// A Bus carries fire-and-forget command strings on a single channel and
// holds a flat, last-write-wins key/value space for status readback.
package bus

import (
	"context"
	"errors"
	"sync"
)

// DefaultChannel is the command channel read by the serial bridge
const DefaultChannel = "tx_to_pico"

// ErrClosed is returned by operations on a closed bus
var ErrClosed = errors.New("bus: closed")

// Bus is the publish/subscribe and key/value service shared by drivers and bridge
type Bus interface {
	// Publish sends a command on the command channel
	Publish(ctx context.Context, msg string) error
	// Subscribe delivers commands until ctx is done or the bus is closed
	Subscribe(ctx context.Context) (<-chan string, error)
	// Get returns the value of key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key
	Set(ctx context.Context, key, value string) error
	// Delete removes key
	Delete(ctx context.Context, key string) error
	Close() error
}

// subscriberBuffer is the per-subscriber queue length for fan-out backends
const subscriberBuffer = 256

// fanout delivers messages to local subscribers without blocking the sender.
// A subscriber whose buffer is full misses the message.
type fanout struct {
	mu      sync.Mutex
	subs    map[chan string]struct{}
	closed  bool
	dropped uint64
}

func newFanout() *fanout {
	return &fanout{subs: make(map[chan string]struct{})}
}

func (f *fanout) add(ctx context.Context) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	ch := make(chan string, subscriberBuffer)
	f.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		f.remove(ch)
	}()

	return ch, nil
}

func (f *fanout) remove(ch chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

func (f *fanout) deliver(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
			f.dropped++
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}
