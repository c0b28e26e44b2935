// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pico

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// InitialTemperature is reported until the first reading arrives
const InitialTemperature = "273.15"

// Temperature is the read only ATMOSPHERE number vector in Kelvin
type Temperature struct {
	mu     sync.Mutex
	device string
	value  string
	stamp  time.Time
	bus    bus.Bus
	log    logrus.FieldLogger
	now    func() time.Time
	timing Timing
}

// NewTemperature creates the temperature vector
func NewTemperature(b bus.Bus, log logrus.FieldLogger, opts Options) *Temperature {
	opts = opts.withDefaults()
	return &Temperature{
		device: opts.Device,
		value:  InitialTemperature,
		stamp:  opts.Clock(),
		bus:    b,
		log:    log.WithField("property", "ATMOSPHERE"),
		now:    opts.Clock,
		timing: opts.Timing,
	}
}

// Value returns the last reported temperature
func (t *Temperature) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Request asks the microcontroller for a reading
func (t *Temperature) Request(ctx context.Context) {
	publish(ctx, t.bus, t.log, picoframe.TemperatureCommand())
}

// Read takes a pending reading off the bus. It returns the setNumberVector
// reporting it, or nil when no reading has arrived.
func (t *Temperature) Read(ctx context.Context) []byte {
	raw, ok := t.take(ctx)
	if !ok {
		return nil
	}

	kelvin := picoframe.ToKelvin(raw)
	metrics.Temperature.Set(kelvin)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = strconv.FormatFloat(kelvin, 'f', -1, 64)
	t.stamp = t.now()
	t.log.WithField("kelvin", t.value).Debug("Temperature reading")

	v := t.vector()
	return v.Set(v.Elements...)
}

// take reads and deletes the raw reading
func (t *Temperature) take(ctx context.Context) (int, bool) {
	s, ok, err := t.bus.Get(ctx, picoframe.KeyTemperature)
	if err != nil {
		t.log.WithError(err).Warn("Failed to read temperature")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	if err := t.bus.Delete(ctx, picoframe.KeyTemperature); err != nil {
		t.log.WithError(err).Warn("Failed to clear temperature reading")
	}
	raw, err := strconv.Atoi(s)
	if err != nil {
		t.log.WithField("value", s).Warn("Ignoring malformed temperature reading")
		return 0, false
	}
	return raw, true
}

func (t *Temperature) vector() *indi.Vector {
	return &indi.Vector{
		Kind:      indi.NumberKind,
		Device:    t.device,
		Name:      "ATMOSPHERE",
		Label:     "Temperature (Kelvin)",
		Group:     "Temperature",
		State:     indi.Ok,
		Perm:      indi.ReadOnly,
		Timestamp: t.stamp,
		Elements: []indi.Element{
			{Name: "TEMPERATURE", Value: t.value, Format: "%.2f", Min: "0", Max: "0", Step: "0"},
		},
	}
}

func (t *Temperature) OnQuery(q *indi.Message) [][]byte {
	if !indi.Matches(q, t.device, "ATMOSPHERE") {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return [][]byte{t.vector().Def()}
}

// OnCommand ignores commands, the vector is read only
func (t *Temperature) OnCommand(m *indi.Message) [][]byte {
	return nil
}

// Run requests a reading until one arrives, reports it, then rests for the
// interval before the next
func (t *Temperature) Run(ctx context.Context, out indi.Sink) error {
	if err := sleep(ctx, t.timing.TemperatureStart); err != nil {
		return err
	}
	for {
		t.Request(ctx)
		if err := sleep(ctx, t.timing.TemperatureWait); err != nil {
			return err
		}
		doc := t.Read(ctx)
		if doc == nil {
			continue
		}
		out.Send(doc)
		if err := sleep(ctx, t.timing.TemperatureInterval); err != nil {
			return err
		}
	}
}
