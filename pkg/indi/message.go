// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package indi implements the subset of the INDI XML device protocol spoken
// between an instrument client and the rooftop drivers.
//
// Inbound data is segmented by FrameReader and parsed into Message values.
// Outbound data is built from Vector definitions and serialized as
// def*Vector or set*Vector documents, one per line.
package indi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Inbound message tags
const (
	TagGetProperties   = "getProperties"
	TagNewTextVector   = "newTextVector"
	TagNewNumberVector = "newNumberVector"
	TagNewSwitchVector = "newSwitchVector"
	TagNewBLOBVector   = "newBLOBVector"
)

// ProtocolVersion is the only getProperties version answered
const ProtocolVersion = "1.7"

// Child is a single element inside a new*Vector, such as a oneSwitch
type Child struct {
	Tag  string
	Name string
	Text string
}

// Message is one parsed inbound document
type Message struct {
	Tag      string
	Attrs    map[string]string
	Children []Child
}

// Attr returns the named attribute and whether it was present
func (m *Message) Attr(name string) (string, bool) {
	v, ok := m.Attrs[name]
	return v, ok
}

// Device returns the device attribute, or "" if absent
func (m *Message) Device() string {
	return m.Attrs["device"]
}

// Name returns the name attribute, or "" if absent
func (m *Message) Name() string {
	return m.Attrs["name"]
}

// IsFor reports whether m is a command of the given tag addressed to
// the property (device, name).
func (m *Message) IsFor(tag, device, name string) bool {
	if m.Tag != tag {
		return false
	}
	d, ok := m.Attrs["device"]
	if !ok || d != device {
		return false
	}
	n, ok := m.Attrs["name"]
	return ok && n == name
}

// ChildrenNamed returns the children with the given tag, in document order
func (m *Message) ChildrenNamed(tag string) []Child {
	var out []Child
	for _, c := range m.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

var errTrailingData = errors.New("trailing data after root element")

// ParseMessage parses a single complete XML document.
// Only the root element and its direct children are kept.
func ParseMessage(data []byte) (*Message, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var msg *Message
	var current *Child
	var text strings.Builder
	depth := 0
	done := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if done {
				return nil, errTrailingData
			}
			depth++
			switch depth {
			case 1:
				msg = &Message{Tag: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
				for _, a := range t.Attr {
					msg.Attrs[a.Name.Local] = a.Value
				}
			case 2:
				current = &Child{Tag: t.Name.Local}
				for _, a := range t.Attr {
					if a.Name.Local == "name" {
						current.Name = a.Value
					}
				}
				text.Reset()
			}

		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, errTrailingData
			}
			if depth == 2 && current != nil {
				text.Write(t)
			}

		case xml.EndElement:
			if depth == 2 && current != nil {
				current.Text = strings.TrimSpace(text.String())
				msg.Children = append(msg.Children, *current)
				current = nil
			}
			depth--
			if depth == 0 {
				done = true
			}
		}
	}

	if msg == nil || !done {
		return nil, errors.New("incomplete document")
	}
	return msg, nil
}
