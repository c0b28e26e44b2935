// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import "time"

// Frame is one decoded or encoded four byte frame
type Frame struct {
	Command   uint8
	Subcode   uint8
	Value     uint8
	Timestamp time.Time
}

// NewFrame creates a frame stamped with the current time
func NewFrame(command, subcode, value uint8) *Frame {
	return &Frame{
		Command:   command,
		Subcode:   subcode,
		Value:     value,
		Timestamp: time.Now(),
	}
}

// Bytes returns the wire form of the frame including the terminator
func (f *Frame) Bytes() []byte {
	return []byte{f.Command, f.Subcode, f.Value, Terminator}
}

// Door returns the door index addressed by a door frame, or -1
func (f *Frame) Door() int {
	switch f.Command {
	case CmdDirection, CmdPWM, CmdDoorStatus, CmdDoorMotion:
		return int(f.Subcode)
	case CmdGetParam, CmdSetParam:
		return int(f.Subcode) / ParamSlots
	}
	return -1
}

// Param returns the parameter index carried by a parameter frame, or -1
func (f *Frame) Param() int {
	if f.Command == CmdGetParam || f.Command == CmdSetParam {
		return int(f.Subcode) % ParamSlots
	}
	return -1
}
