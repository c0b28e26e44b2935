// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pico

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// LED switch elements
const (
	LEDOn  = "LED ON"
	LEDOff = "LED OFF"
)

// LED is the switch vector controlling the on-board LED
type LED struct {
	mu     sync.Mutex
	device string
	on     bool
	bus    bus.Bus
	log    logrus.FieldLogger
	now    func() time.Time
	delay  time.Duration
}

// NewLED creates the LED switch, initially off
func NewLED(b bus.Bus, log logrus.FieldLogger, opts Options) *LED {
	opts = opts.withDefaults()
	return &LED{
		device: opts.Device,
		bus:    b,
		log:    log.WithField("property", "LED"),
		now:    opts.Clock,
		delay:  opts.Timing.LEDOff,
	}
}

// On reports the last requested LED state
func (l *LED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *LED) vector() *indi.Vector {
	on, off := indi.Off, indi.On
	if l.on {
		on, off = indi.On, indi.Off
	}
	return &indi.Vector{
		Kind:      indi.SwitchKind,
		Device:    l.device,
		Name:      "LED",
		Label:     "LED",
		Group:     "LED",
		State:     indi.Ok,
		Perm:      indi.ReadWrite,
		Rule:      indi.OneOfMany,
		Timestamp: l.now(),
		Elements: []indi.Element{
			{Name: LEDOn, Value: on},
			{Name: LEDOff, Value: off},
		},
	}
}

func (l *LED) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, l.device, "LED") {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return [][]byte{l.vector().Def()}
}

// OnCommand switches the LED. The last recognised switch in the request
// wins; the reply carries the elements only when the state changed.
func (l *LED) OnCommand(m *indi.Message) [][]byte {
	if !m.IsFor(indi.TagNewSwitchVector, l.device, "LED") {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	on := l.on
	for _, c := range m.ChildrenNamed("oneSwitch") {
		value := strings.TrimSpace(c.Text)
		switch {
		case c.Name == LEDOn && value == indi.On, c.Name == LEDOff && value == indi.Off:
			on = true
		case c.Name == LEDOn && value == indi.Off, c.Name == LEDOff && value == indi.On:
			on = false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	publish(ctx, l.bus, l.log, picoframe.LEDCommand(on))

	changed := on != l.on
	l.on = on
	v := l.vector()
	if !changed {
		return [][]byte{v.Set()}
	}
	l.log.WithField("on", on).Info("LED switched")
	return [][]byte{v.Set(v.Elements...)}
}

// Run switches the LED off once, shortly after startup
func (l *LED) Run(ctx context.Context, out indi.Sink) error {
	if err := sleep(ctx, l.delay); err != nil {
		return err
	}
	publish(ctx, l.bus, l.log, picoframe.LEDCommand(false))
	l.mu.Lock()
	l.on = false
	l.mu.Unlock()
	return nil
}
