// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indi

// Property is implemented by every device property served by a driver.
// Both methods return the documents to send, in order; nil means nothing.
type Property interface {
	// OnQuery answers a getProperties request
	OnQuery(q *Message) [][]byte
	// OnCommand handles a new*Vector request
	OnCommand(m *Message) [][]byte
}

// Sink accepts outbound documents
type Sink interface {
	Send(doc []byte)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(doc []byte)

// Send calls f(doc)
func (f SinkFunc) Send(doc []byte) {
	f(doc)
}

// Matches reports whether a getProperties request selects the property
// (device, name). A request with no device attribute selects everything.
func Matches(q *Message, device, name string) bool {
	d, ok := q.Attr("device")
	if !ok {
		return true
	}
	if d != device {
		return false
	}
	n, ok := q.Attr("name")
	return !ok || n == name
}
