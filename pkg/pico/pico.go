// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pico implements the Rempico01 device: the on-board LED, the
// monitor echo that checks the microcontroller is alive, and the temperature
// sensor.
package pico

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/driver"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/metrics"
)

// DeviceName is the protocol device served by this package
const DeviceName = "Rempico01"

// publishTimeout bounds bus operations made while handling a command
const publishTimeout = 2 * time.Second

// Timing holds the delays of the periodic tasks
type Timing struct {
	LEDOff              time.Duration // startup delay before the LED is switched off
	MonitorInterval     time.Duration // pause between monitor echo requests
	MonitorWait         time.Duration // time allowed for the echo to arrive
	TemperatureStart    time.Duration // delay before the first reading
	TemperatureWait     time.Duration // time allowed for a reading to arrive
	TemperatureInterval time.Duration // pause after a reading is reported
}

// DefaultTiming returns the production timings
func DefaultTiming() Timing {
	return Timing{
		LEDOff:              5 * time.Second,
		MonitorInterval:     10 * time.Second,
		MonitorWait:         5 * time.Second,
		TemperatureStart:    10 * time.Second,
		TemperatureWait:     10 * time.Second,
		TemperatureInterval: 3590 * time.Second,
	}
}

// Options configures the device
type Options struct {
	Device string
	Timing Timing
	Clock  func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Device == "" {
		o.Device = DeviceName
	}
	def := DefaultTiming()
	if o.Timing.LEDOff <= 0 {
		o.Timing.LEDOff = def.LEDOff
	}
	if o.Timing.MonitorInterval <= 0 {
		o.Timing.MonitorInterval = def.MonitorInterval
	}
	if o.Timing.MonitorWait <= 0 {
		o.Timing.MonitorWait = def.MonitorWait
	}
	if o.Timing.TemperatureStart <= 0 {
		o.Timing.TemperatureStart = def.TemperatureStart
	}
	if o.Timing.TemperatureWait <= 0 {
		o.Timing.TemperatureWait = def.TemperatureWait
	}
	if o.Timing.TemperatureInterval <= 0 {
		o.Timing.TemperatureInterval = def.TemperatureInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Device groups the three Rempico01 properties
type Device struct {
	LED         *LED
	Monitor     *Monitor
	Temperature *Temperature
}

// NewDevice builds the pico device on b
func NewDevice(b bus.Bus, log logrus.FieldLogger, opts Options) *Device {
	opts = opts.withDefaults()
	log = log.WithField("device", opts.Device)
	return &Device{
		LED:         NewLED(b, log, opts),
		Monitor:     NewMonitor(b, log, opts),
		Temperature: NewTemperature(b, log, opts),
	}
}

// Properties returns the vectors to register with the driver runtime
func (d *Device) Properties() []indi.Property {
	return []indi.Property{d.LED, d.Monitor, d.Temperature}
}

// Tasks returns the periodic activities of the device
func (d *Device) Tasks() []driver.Task {
	return []driver.Task{d.LED, d.Monitor, d.Temperature}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func publish(ctx context.Context, b bus.Bus, log logrus.FieldLogger, cmd string) bool {
	if err := b.Publish(ctx, cmd); err != nil {
		metrics.BusPublishes.WithLabelValues("error").Inc()
		log.WithError(err).WithField("command", cmd).Warn("Bus publish failed")
		return false
	}
	metrics.BusPublishes.WithLabelValues("ok").Inc()
	return true
}
