// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indi

import (
	"bytes"
	"encoding/xml"
	"time"
)

// State is the state attribute of a vector or the value of a light
type State string

const (
	Idle  State = "Idle"
	Ok    State = "Ok"
	Busy  State = "Busy"
	Alert State = "Alert"
)

// Perm is a vector permission
type Perm string

const (
	ReadOnly  Perm = "ro"
	WriteOnly Perm = "wo"
	ReadWrite Perm = "rw"
)

// Rule constrains the switches of a switch vector
type Rule string

const (
	OneOfMany Rule = "OneOfMany"
	AtMostOne Rule = "AtMostOne"
	AnyOfMany Rule = "AnyOfMany"
)

// Switch values
const (
	On  = "On"
	Off = "Off"
)

// Kind identifies the four vector families
type Kind int

const (
	SwitchKind Kind = iota
	LightKind
	NumberKind
	TextKind
)

func (k Kind) String() string {
	switch k {
	case SwitchKind:
		return "Switch"
	case LightKind:
		return "Light"
	case NumberKind:
		return "Number"
	case TextKind:
		return "Text"
	default:
		return "Unknown"
	}
}

// TimestampFormat is the UTC timestamp layout, truncated to tenths of a second
const TimestampFormat = "2006-01-02T15:04:05.0"

// Timestamp formats t for a timestamp attribute
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Element is one member of a vector.
// Format, Min, Max and Step are used by number vectors only.
type Element struct {
	Name   string
	Label  string
	Value  string
	Format string
	Min    string
	Max    string
	Step   string
}

// Vector describes one property and builds its outbound messages
type Vector struct {
	Kind      Kind
	Device    string
	Name      string
	Label     string
	Group     string
	State     State
	Perm      Perm
	Rule      Rule
	Message   string
	Timestamp time.Time
	Elements  []Element
}

// Def returns the def*Vector document describing every element
func (v *Vector) Def() []byte {
	attrs := []xml.Attr{
		attr("device", v.Device),
		attr("name", v.Name),
	}
	if v.Label != "" {
		attrs = append(attrs, attr("label", v.Label))
	}
	if v.Group != "" {
		attrs = append(attrs, attr("group", v.Group))
	}
	attrs = append(attrs, attr("state", string(v.State)))
	if v.Kind != LightKind {
		attrs = append(attrs, attr("perm", string(v.Perm)))
	}
	if v.Kind == SwitchKind {
		attrs = append(attrs, attr("rule", string(v.Rule)))
	}
	attrs = append(attrs, attr("timestamp", Timestamp(v.Timestamp)))
	if v.Message != "" {
		attrs = append(attrs, attr("message", v.Message))
	}

	child := "def" + v.Kind.String()
	children := make([]node, 0, len(v.Elements))
	for _, e := range v.Elements {
		ea := []xml.Attr{attr("name", e.Name)}
		if e.Label != "" {
			ea = append(ea, attr("label", e.Label))
		}
		if v.Kind == NumberKind {
			ea = append(ea,
				attr("format", e.Format),
				attr("min", e.Min),
				attr("max", e.Max),
				attr("step", e.Step),
			)
		}
		children = append(children, node{tag: child, attrs: ea, text: e.Value})
	}

	return encode(node{tag: "def" + v.Kind.String() + "Vector", attrs: attrs}, children)
}

// Set returns a set*Vector document carrying only the given elements.
// State and Message are included when non-empty.
func (v *Vector) Set(elements ...Element) []byte {
	attrs := []xml.Attr{
		attr("device", v.Device),
		attr("name", v.Name),
		attr("timestamp", Timestamp(v.Timestamp)),
	}
	if v.State != "" {
		attrs = append(attrs, attr("state", string(v.State)))
	}
	if v.Message != "" {
		attrs = append(attrs, attr("message", v.Message))
	}

	child := "one" + v.Kind.String()
	children := make([]node, 0, len(elements))
	for _, e := range elements {
		children = append(children, node{tag: child, attrs: []xml.Attr{attr("name", e.Name)}, text: e.Value})
	}

	return encode(node{tag: "set" + v.Kind.String() + "Vector", attrs: attrs}, children)
}

// Element returns the element with the given name
func (v *Vector) Element(name string) (Element, bool) {
	for _, e := range v.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Notice builds a bare <message> document shown in the client's log
func Notice(device, text string, t time.Time) []byte {
	attrs := []xml.Attr{}
	if device != "" {
		attrs = append(attrs, attr("device", device))
	}
	attrs = append(attrs, attr("timestamp", Timestamp(t)), attr("message", text))
	return encode(node{tag: "message", attrs: attrs}, nil)
}

type node struct {
	tag   string
	attrs []xml.Attr
	text  string
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func encode(root node, children []node) []byte {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	// Writes to a bytes.Buffer cannot fail and every token is well formed
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: root.tag}, Attr: root.attrs})
	for _, c := range children {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: c.tag}, Attr: c.attrs})
		if c.text != "" {
			_ = enc.EncodeToken(xml.CharData(c.text))
		}
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: c.tag}})
	}
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: root.tag}})
	_ = enc.Flush()

	return buf.Bytes()
}
