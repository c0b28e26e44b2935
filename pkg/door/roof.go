// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/indi"
)

// Shutter switch elements
const (
	ShutterOpen  = "SHUTTER_OPEN"
	ShutterClose = "SHUTTER_CLOSE"
)

// Starter begins a door motion
type Starter interface {
	StartDoor(ctx context.Context, dir Direction, slow bool) bool
}

// Roof is the DOME_SHUTTER switch opening and closing both doors
type Roof struct {
	mu     sync.Mutex
	device string
	doors  []Starter
	lights *StatusLights
	status Status
	log    logrus.FieldLogger
	now    func() time.Time
	tick   time.Duration
}

// NewRoof creates the shutter switch driving doors and mirroring lights
func NewRoof(lights *StatusLights, log logrus.FieldLogger, opts Options, doors ...Starter) *Roof {
	opts = opts.withDefaults()
	return &Roof{
		device: opts.Device,
		doors:  doors,
		lights: lights,
		status: StatusUnknown,
		log:    log.WithField("property", "DOME_SHUTTER"),
		now:    opts.Clock,
		tick:   opts.Tick,
	}
}

func (r *Roof) vector(status Status) *indi.Vector {
	state := indi.Ok
	open, closed := indi.Off, indi.Off
	switch status {
	case StatusOpen:
		open = indi.On
	case StatusOpening:
		open = indi.On
		state = indi.Busy
	case StatusClosed:
		closed = indi.On
	case StatusClosing:
		closed = indi.On
		state = indi.Busy
	}

	return &indi.Vector{
		Kind:      indi.SwitchKind,
		Device:    r.device,
		Name:      "DOME_SHUTTER",
		Label:     "Control",
		Group:     "Control",
		State:     state,
		Perm:      indi.ReadWrite,
		Rule:      indi.OneOfMany,
		Timestamp: r.now(),
		Elements: []indi.Element{
			{Name: ShutterOpen, Value: open},
			{Name: ShutterClose, Value: closed},
		},
	}
}

func (r *Roof) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, r.device, "DOME_SHUTTER") {
		return nil
	}
	return [][]byte{r.vector(r.lights.Status()).Def()}
}

// OnCommand opens or closes both doors. A request for the state the roof
// is already in is acknowledged with Ok; requests while the roof is moving
// or in an unknown state are ignored.
func (r *Roof) OnCommand(m *indi.Message) [][]byte {
	if !m.IsFor(indi.TagNewSwitchVector, r.device, "DOME_SHUTTER") {
		return nil
	}

	var out [][]byte
	for _, c := range m.ChildrenNamed("oneSwitch") {
		status := r.lights.Status()
		wantOpen := (c.Name == ShutterOpen && c.Text == indi.On) || (c.Name == ShutterClose && c.Text == indi.Off)
		wantClose := (c.Name == ShutterOpen && c.Text == indi.Off) || (c.Name == ShutterClose && c.Text == indi.On)

		switch {
		case wantOpen && status == StatusClosed:
			r.start(Open)
		case wantClose && status == StatusOpen:
			r.start(Close)
		case wantOpen && status == StatusOpen, wantClose && status == StatusClosed:
			out = append(out, r.ok())
		}
	}
	return out
}

func (r *Roof) start(dir Direction) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	r.log.WithField("direction", dir).Info("Roof commanded")
	for _, d := range r.doors {
		d.StartDoor(ctx, dir, false)
	}
}

func (r *Roof) ok() []byte {
	v := &indi.Vector{
		Kind:      indi.SwitchKind,
		Device:    r.device,
		Name:      "DOME_SHUTTER",
		State:     indi.Ok,
		Timestamp: r.now(),
	}
	return v.Set()
}

// Update returns a setSwitchVector when the roof status has changed
func (r *Roof) Update() []byte {
	status := r.lights.Status()

	r.mu.Lock()
	defer r.mu.Unlock()
	if status == r.status {
		return nil
	}
	r.status = status

	v := r.vector(status)
	return v.Set(v.Elements...)
}

// Run mirrors the roof status every tick until ctx is done
func (r *Roof) Run(ctx context.Context, out indi.Sink) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if doc := r.Update(); doc != nil {
				out.Send(doc)
			}
		}
	}
}
