// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/rooftop/pkg/indi"
)

// Status is the aggregate state of the roof
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusOpening Status = "OPENING"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
	StatusUnknown Status = "UNKNOWN"
)

// Statuses lists every status in light element order
var Statuses = []Status{StatusOpen, StatusOpening, StatusClosing, StatusClosed, StatusUnknown}

// Aggregate derives the roof status from both doors. The doors always move
// together, so any disagreement in direction is reported as unknown.
func Aggregate(left, right State) Status {
	moving := left.Moving || right.Moving
	switch {
	case left.Direction == Open && right.Direction == Open:
		if moving {
			return StatusOpening
		}
		return StatusOpen
	case left.Direction == Close && right.Direction == Close:
		if moving {
			return StatusClosing
		}
		return StatusClosed
	}
	return StatusUnknown
}

// StateSource reports a door's motion state
type StateSource interface {
	State() State
}

// StatusLights is the DOOR_STATE light vector
type StatusLights struct {
	mu     sync.Mutex
	device string
	left   StateSource
	right  StateSource
	status Status
	now    func() time.Time
	tick   time.Duration
}

// NewStatusLights creates the status lights for the two doors
func NewStatusLights(left, right StateSource, opts Options) *StatusLights {
	opts = opts.withDefaults()
	return &StatusLights{
		device: opts.Device,
		left:   left,
		right:  right,
		status: StatusUnknown,
		now:    opts.Clock,
		tick:   opts.Tick,
	}
}

// Status returns the last reported status
func (s *StatusLights) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Update recomputes the status and returns a setLightVector if it changed
func (s *StatusLights) Update() []byte {
	status := Aggregate(s.left.State(), s.right.State())

	s.mu.Lock()
	defer s.mu.Unlock()
	if status == s.status {
		return nil
	}
	s.status = status

	v := s.vector()
	return v.Set(v.Elements...)
}

func (s *StatusLights) vector() *indi.Vector {
	elements := make([]indi.Element, len(Statuses))
	for i, st := range Statuses {
		value := indi.Idle
		if st == s.status {
			value = indi.Ok
			if st == StatusUnknown {
				value = indi.Alert
			}
		}
		elements[i] = indi.Element{Name: string(st), Value: string(value)}
	}

	state := indi.Ok
	if s.status == StatusUnknown {
		state = indi.Alert
	}

	return &indi.Vector{
		Kind:      indi.LightKind,
		Device:    s.device,
		Name:      "DOOR_STATE",
		Label:     "Roll Off door status",
		Group:     "Control",
		State:     state,
		Message:   "Roof status : " + strings.ToLower(string(s.status)),
		Timestamp: s.now(),
		Elements:  elements,
	}
}

func (s *StatusLights) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, s.device, "DOOR_STATE") {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return [][]byte{s.vector().Def()}
}

// OnCommand ignores commands, lights are read only
func (s *StatusLights) OnCommand(m *indi.Message) [][]byte {
	return nil
}

// Run publishes status changes every tick until ctx is done
func (s *StatusLights) Run(ctx context.Context, out indi.Sink) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if doc := s.Update(); doc != nil {
				out.Send(doc)
			}
		}
	}
}
