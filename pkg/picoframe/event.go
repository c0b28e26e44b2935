// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import (
	"context"
	"fmt"
)

// Event is the state change carried by a received frame
type Event struct {
	Key   string
	Value string
	Frame *Frame
}

func newEvent(f *Frame, key, value string) *Event {
	return &Event{Key: key, Value: value, Frame: f}
}

// KeyWriter stores bus keys
type KeyWriter interface {
	Set(ctx context.Context, key, value string) error
}

// Apply writes the event to its bus key
func (e *Event) Apply(ctx context.Context, w KeyWriter) error {
	if err := w.Set(ctx, e.Key, e.Value); err != nil {
		return fmt.Errorf("apply %s=%s: %w", e.Key, e.Value, err)
	}
	return nil
}

func (e *Event) String() string {
	return e.Key + "=" + e.Value
}
