// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"sync"
)

// maxPublished bounds the command record kept by Memory
const maxPublished = 1024

// Memory is an in-process Bus for single-process deployments and tests
type Memory struct {
	mu     sync.RWMutex
	keys   map[string]string
	subs   *fanout
	closed bool

	// published records the most recent commands in order
	published []string
}

// NewMemory creates an empty in-process bus
func NewMemory() *Memory {
	return &Memory{
		keys: make(map[string]string),
		subs: newFanout(),
	}
}

func (m *Memory) Publish(ctx context.Context, msg string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if len(m.published) == maxPublished {
		n := copy(m.published, m.published[1:])
		m.published = m.published[:n]
	}
	m.published = append(m.published, msg)
	m.mu.Unlock()

	m.subs.deliver(msg)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan string, error) {
	return m.subs.add(ctx)
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.keys[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.keys[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.keys, key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.subs.close()
	return nil
}

// Published returns a copy of the most recent commands, oldest first, or nil
// when nothing has been published
func (m *Memory) Published() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.published) == 0 {
		return nil
	}
	out := make([]string, len(m.published))
	copy(out, m.published)
	return out
}

// ResetPublished clears the record of published commands
func (m *Memory) ResetPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}
