// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package door

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/driver"
	"github.com/Thermoquad/rooftop/pkg/indi"
)

// Device is the complete roll-off roof: both doors, the status lights and
// the shutter switch
type Device struct {
	Left   *Door
	Right  *Door
	Lights *StatusLights
	Roof   *Roof
}

// NewDevice builds the roof device on b
func NewDevice(b bus.Bus, log logrus.FieldLogger, opts Options) *Device {
	log = log.WithField("device", opts.withDefaults().Device)
	left := NewDoor(0, b, log, opts)
	right := NewDoor(1, b, log, opts)
	lights := NewStatusLights(left, right, opts)
	roof := NewRoof(lights, log, opts, left, right)
	return &Device{Left: left, Right: right, Lights: lights, Roof: roof}
}

// Home starts a slow close of both doors, bringing a roof left part open
// after a power loss back to a known state
func (d *Device) Home(ctx context.Context) {
	d.Left.StartDoor(ctx, Close, true)
	d.Right.StartDoor(ctx, Close, true)
}

// Properties returns the vectors to register with the driver runtime
func (d *Device) Properties() []indi.Property {
	return []indi.Property{d.Left, d.Right, d.Lights, d.Roof}
}

// Tasks returns the periodic updates of every component
func (d *Device) Tasks() []driver.Task {
	return []driver.Task{d.Left, d.Right, d.Lights, d.Roof}
}
