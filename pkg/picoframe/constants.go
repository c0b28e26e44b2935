// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package picoframe implements the fixed-size serial frame protocol spoken by
// the roof controller's microcontroller.
//
// Every frame is four bytes: command, subcode, value and the terminator 0xFF.
// The host sends commands translated from bus command strings, and the
// microcontroller answers with status frames that are written back to bus
// keys. A frame whose last byte is not the terminator means the stream has
// lost alignment and the reader resynchronizes byte by byte.
package picoframe

// Framing
const (
	FrameSize  = 4
	Terminator = 0xFF

	// MaxValue is the largest value byte a command may carry
	MaxValue = 254
)

// Command bytes
const (
	CmdLED         = 1
	CmdMonitor     = 2
	CmdDirection   = 3
	CmdPWM         = 4
	CmdTemperature = 5
	CmdDoorStatus  = 6
	CmdGetParam    = 7
	CmdSetParam    = 8
	CmdDoorMotion  = 9
)

// Subcodes
const (
	LEDPin = 25

	// TempLowChannel carries the low byte of the ADC reading and is also the
	// channel requested by the host
	TempLowChannel  = 4
	TempHighChannel = 5
)

// Door geometry
const (
	DoorCount = 2

	// ParamSlots is the number of parameter slots reserved per door in the
	// subcode of parameter frames
	ParamSlots = 8
)

// Door limit-switch status codes reported by the microcontroller
const (
	StatusUnknown   = 0
	StatusOpenLimit = 1
	StatusOpening   = 2
	StatusClosed    = 3
	StatusClosing   = 4
	StatusStopped   = 5
	StatusFault     = 6

	MaxStatusCode = StatusFault
)

// Value limits
const (
	MaxPWM         = 100
	DirectionClose = 0
	DirectionOpen  = 1
)
