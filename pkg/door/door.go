// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package door implements the roll-off roof device: one motion controller per
// door, the roof status lights and the shutter switch.
package door

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// DeviceName is the protocol device served by this package
const DeviceName = "Roll off door"

// DefaultTick is the door update period
const DefaultTick = 200 * time.Millisecond

// publishTimeout bounds bus publishes made outside a task context
const publishTimeout = 2 * time.Second

// Direction is the end of travel a door is bound for
type Direction int

const (
	Close Direction = iota
	Open
)

func (d Direction) String() string {
	if d == Open {
		return "open"
	}
	return "close"
}

// State is the externally observable motion state of a door
type State struct {
	Direction Direction
	Moving    bool
}

// Options configures a Door
type Options struct {
	Device   string
	Profile  Profile
	ParamDir string // empty disables persistence
	Tick     time.Duration
	Clock    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Device == "" {
		o.Device = DeviceName
	}
	if o.Profile == nil {
		o.Profile = Quartic{}
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Door drives one door motor through the bus.
//
// Commands from the reader and updates from the door's own task may arrive
// concurrently, so all state is guarded by mu.
type Door struct {
	mu sync.Mutex

	index   int
	device  string
	name    string
	group   string
	profile Profile
	params  []int
	file    *ParamFile
	bus     bus.Bus
	log     logrus.FieldLogger
	now     func() time.Time
	tick    time.Duration

	direction Direction
	moving    bool
	slow      bool
	start     time.Time
	pwm       int
}

// NewDoor creates door 0 (left) or 1 (right), loading saved parameters
func NewDoor(index int, b bus.Bus, log logrus.FieldLogger, opts Options) *Door {
	opts = opts.withDefaults()

	name, group := "LEFT_DOOR", "Left door"
	if index != 0 {
		name, group = "RIGHT_DOOR", "Right door"
	}

	d := &Door{
		index:     index,
		device:    opts.Device,
		name:      name,
		group:     group,
		profile:   opts.Profile,
		params:    opts.Profile.Defaults(),
		bus:       b,
		log:       log.WithField("door", name),
		now:       opts.Clock,
		tick:      opts.Tick,
		direction: Open,
	}

	if opts.ParamDir != "" {
		d.file = NewParamFile(opts.ParamDir, name, len(d.params))
		if params, ok := d.file.Load(); ok {
			if msg := d.profile.Validate(params); msg != "" {
				d.log.WithField("reason", msg).Warn("Ignoring saved door parameters")
			} else {
				d.params = params
			}
		}
	}

	return d
}

// Name returns the vector name of the door
func (d *Door) Name() string {
	return d.name
}

// State returns the door's direction and whether it is moving
func (d *Door) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Direction: d.direction, Moving: d.moving}
}

// Params returns a copy of the tuning parameters
func (d *Door) Params() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.params...)
}

// PWM returns the last pwm ratio sent to the motor
func (d *Door) PWM() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pwm
}

// StartDoor begins a motion towards dir. It does nothing and returns false
// while the door is already moving.
func (d *Door) StartDoor(ctx context.Context, dir Direction, slow bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.moving {
		return false
	}
	d.start = d.now()
	d.moving = true
	d.slow = slow
	d.direction = dir

	d.log.WithFields(logrus.Fields{"direction": dir, "slow": slow}).Info("Door starting")
	d.publish(ctx, picoframe.DirectionCommand(d.index, dir == Open))
	return true
}

// Update advances the motion by one tick
func (d *Door) Update(ctx context.Context) {
	code, haveCode := d.limitStatus(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.moving {
		d.slow = false
		if haveCode {
			switch code {
			case picoframe.StatusOpenLimit:
				d.direction = Open
			case picoframe.StatusClosed:
				d.direction = Close
			}
		}
		return
	}

	if haveCode && d.reachedLimit(code) {
		d.log.WithField("status", picoframe.FormatStatus(uint8(code))).Info("Door stopped by limit switch")
		d.stop(ctx)
		return
	}

	elapsed := d.now().Sub(d.start).Seconds()
	if elapsed >= d.profile.MaxRunningTime(d.params) {
		d.log.WithField("elapsed", elapsed).Warn("Door stopped by maximum running time")
		metrics.DoorFailsafe.WithLabelValues(strconv.Itoa(d.index)).Inc()
		d.stop(ctx)
		return
	}

	pwm := int(d.profile.PWM(d.params, elapsed, d.slow))
	if pwm == d.pwm {
		return
	}
	d.pwm = pwm
	metrics.DoorPWM.WithLabelValues(strconv.Itoa(d.index)).Set(float64(pwm))
	d.publish(ctx, picoframe.PWMCommand(d.index, pwm))
}

// reachedLimit reports whether code ends the current motion
func (d *Door) reachedLimit(code int) bool {
	switch code {
	case picoframe.StatusFault:
		return true
	case picoframe.StatusOpenLimit:
		return d.direction == Open
	case picoframe.StatusClosed:
		return d.direction == Close
	}
	return false
}

func (d *Door) stop(ctx context.Context) {
	d.moving = false
	d.pwm = 0
	metrics.DoorPWM.WithLabelValues(strconv.Itoa(d.index)).Set(0)
	d.publish(ctx, picoframe.PWMCommand(d.index, 0))
}

// limitStatus reads the door's limit-switch code from the bus
func (d *Door) limitStatus(ctx context.Context) (int, bool) {
	v, ok, err := d.bus.Get(ctx, picoframe.DoorStatusKey(d.index))
	if err != nil {
		d.log.WithError(err).Debug("Failed to read door status")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	code, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return code, true
}

func (d *Door) publish(ctx context.Context, cmd string) {
	if err := d.bus.Publish(ctx, cmd); err != nil {
		metrics.BusPublishes.WithLabelValues("error").Inc()
		d.log.WithError(err).WithField("command", cmd).Warn("Bus publish failed")
		return
	}
	metrics.BusPublishes.WithLabelValues("ok").Inc()
}

// Run updates the door every tick until ctx is done
func (d *Door) Run(ctx context.Context, out indi.Sink) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Update(ctx)
		}
	}
}

// ============================================================
// Number vector
// ============================================================

func (d *Door) vector() *indi.Vector {
	defs := d.profile.Params()
	elements := make([]indi.Element, len(defs))
	for i, def := range defs {
		elements[i] = indi.Element{
			Name:   def.Name,
			Label:  def.Label,
			Value:  strconv.Itoa(d.params[i]),
			Format: "%2d",
			Min:    strconv.Itoa(def.Min),
			Max:    strconv.Itoa(def.Max),
			Step:   "1",
		}
	}
	return &indi.Vector{
		Kind:      indi.NumberKind,
		Device:    d.device,
		Name:      d.name,
		Label:     "Door motion parameters",
		Group:     d.group,
		State:     indi.Ok,
		Perm:      indi.ReadWrite,
		Timestamp: d.now(),
		Elements:  elements,
	}
}

func (d *Door) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, d.device, d.name) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return [][]byte{d.vector().Def()}
}

// OnCommand merges new parameter values over the current ones, validates
// them and replies with the elements that changed
func (d *Door) OnCommand(m *indi.Message) [][]byte {
	if !m.IsFor(indi.TagNewNumberVector, d.device, d.name) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	defs := d.profile.Params()
	proposed := append([]int(nil), d.params...)
	for _, c := range m.ChildrenNamed("oneNumber") {
		i := paramIndex(defs, c.Name)
		if i < 0 {
			continue
		}
		v, ok := parseWhole(c.Text)
		if !ok {
			return [][]byte{d.reply(indi.Alert, MsgWholeNumbers)}
		}
		proposed[i] = v
	}

	var changed []indi.Element
	for i, v := range proposed {
		if v != d.params[i] {
			changed = append(changed, indi.Element{Name: defs[i].Name, Value: strconv.Itoa(v)})
		}
	}
	if len(changed) == 0 {
		return [][]byte{d.reply(indi.Ok, MsgParameters)}
	}

	if msg := d.profile.Validate(proposed); msg != "" {
		d.log.WithField("reason", msg).Info("Rejected door parameters")
		return [][]byte{d.reply(indi.Alert, msg)}
	}

	d.params = proposed
	if d.file != nil {
		if err := d.file.Save(proposed); err != nil {
			d.log.WithError(err).Error("Failed to save door parameters")
		}
	}
	d.log.WithField("params", proposed).Info("Door parameters updated")
	return [][]byte{d.reply(indi.Ok, MsgParameters, changed...)}
}

func (d *Door) reply(state indi.State, message string, changed ...indi.Element) []byte {
	v := d.vector()
	v.State = state
	v.Message = message
	return v.Set(changed...)
}

func paramIndex(defs []ParamDef, name string) int {
	for i, def := range defs {
		if def.Name == name {
			return i
		}
	}
	return -1
}

// parseWhole parses a decimal number with no fractional part, so "80" and
// "80.0" are accepted and "80.9" is not
func parseWhole(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
