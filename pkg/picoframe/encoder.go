// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import (
	"strconv"
	"strings"
)

// EncodeCommand translates a bus command string into frame bytes.
// Unrecognized commands and out-of-range values return nil.
func EncodeCommand(cmd string) []byte {
	f := ParseCommand(cmd)
	if f == nil {
		return nil
	}
	return f.Bytes()
}

// ParseCommand translates a bus command string into a frame, or nil
func ParseCommand(cmd string) *Frame {
	rest, ok := strings.CutPrefix(cmd, "pico_")
	if !ok {
		return nil
	}

	switch {
	case rest == "led_On":
		return NewFrame(CmdLED, LEDPin, 1)
	case rest == "led_Off":
		return NewFrame(CmdLED, LEDPin, 0)
	case rest == "temperature":
		return NewFrame(CmdTemperature, TempLowChannel, 0)
	case strings.HasPrefix(rest, "monitor_"):
		n, ok := parseValue(strings.TrimPrefix(rest, "monitor_"), MaxValue)
		if !ok {
			return nil
		}
		return NewFrame(CmdMonitor, 0, n)
	case strings.HasPrefix(rest, "door"):
		return parseDoorCommand(strings.TrimPrefix(rest, "door"))
	}
	return nil
}

// parseDoorCommand handles "<d>_<action>[_<args>]"
func parseDoorCommand(s string) *Frame {
	doorText, action, ok := strings.Cut(s, "_")
	if !ok {
		return nil
	}
	door, ok := parseValue(doorText, DoorCount-1)
	if !ok {
		return nil
	}

	switch {
	case action == "open":
		return NewFrame(CmdDoorMotion, door, 1)
	case action == "close":
		return NewFrame(CmdDoorMotion, door, 0)
	case strings.HasPrefix(action, "direction_"):
		v, ok := parseValue(strings.TrimPrefix(action, "direction_"), DirectionOpen)
		if !ok {
			return nil
		}
		return NewFrame(CmdDirection, door, v)
	case strings.HasPrefix(action, "pwm_"):
		v, ok := parseValue(strings.TrimPrefix(action, "pwm_"), MaxValue)
		if !ok {
			return nil
		}
		return NewFrame(CmdPWM, door, v)
	case strings.HasPrefix(action, "getparam_"):
		i, ok := parseValue(strings.TrimPrefix(action, "getparam_"), ParamSlots-1)
		if !ok {
			return nil
		}
		return NewFrame(CmdGetParam, door*ParamSlots+i, 0)
	case strings.HasPrefix(action, "setparam_"):
		indexText, valueText, ok := strings.Cut(strings.TrimPrefix(action, "setparam_"), "_")
		if !ok {
			return nil
		}
		i, ok := parseValue(indexText, ParamSlots-1)
		if !ok {
			return nil
		}
		v, ok := parseValue(valueText, MaxValue)
		if !ok {
			return nil
		}
		return NewFrame(CmdSetParam, door*ParamSlots+i, v)
	}
	return nil
}

// parseValue parses a decimal in [0, max]
func parseValue(s string, max int) (uint8, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	return uint8(n), true
}
