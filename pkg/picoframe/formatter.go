// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import "fmt"

// FormatFrame formats a frame into a human-readable line
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	return fmt.Sprintf("[%s] %-12s [%3d %3d %3d 0xFF] %s", timestamp, FormatCommand(f.Command),
		f.Command, f.Subcode, f.Value, FormatDetail(f))
}

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(cmd uint8) string {
	switch cmd {
	case CmdLED:
		return "LED"
	case CmdMonitor:
		return "MONITOR"
	case CmdDirection:
		return "DIRECTION"
	case CmdPWM:
		return "PWM"
	case CmdTemperature:
		return "TEMPERATURE"
	case CmdDoorStatus:
		return "DOOR_STATUS"
	case CmdGetParam:
		return "GET_PARAM"
	case CmdSetParam:
		return "SET_PARAM"
	case CmdDoorMotion:
		return "DOOR_MOTION"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", cmd)
	}
}

// FormatStatus returns the name of a limit-switch status code
func FormatStatus(code uint8) string {
	switch code {
	case StatusUnknown:
		return "unknown"
	case StatusOpenLimit:
		return "open"
	case StatusOpening:
		return "opening"
	case StatusClosed:
		return "closed"
	case StatusClosing:
		return "closing"
	case StatusStopped:
		return "stopped"
	case StatusFault:
		return "fault"
	default:
		return fmt.Sprintf("invalid(%d)", code)
	}
}

// FormatDetail describes the subcode and value of a frame
func FormatDetail(f *Frame) string {
	switch f.Command {
	case CmdLED:
		state := "off"
		if f.Value == 1 {
			state = "on"
		}
		return fmt.Sprintf("pin=%d %s", f.Subcode, state)
	case CmdMonitor:
		return fmt.Sprintf("echo=%d", f.Value)
	case CmdDirection:
		dir := "close"
		if f.Value == DirectionOpen {
			dir = "open"
		}
		return fmt.Sprintf("door=%d %s", f.Subcode, dir)
	case CmdPWM:
		return fmt.Sprintf("door=%d pwm=%d%%", f.Subcode, f.Value)
	case CmdTemperature:
		switch f.Subcode {
		case TempHighChannel:
			return fmt.Sprintf("adc high=%d", f.Value)
		case TempLowChannel:
			return fmt.Sprintf("adc low=%d", f.Value)
		}
		return fmt.Sprintf("channel=%d value=%d", f.Subcode, f.Value)
	case CmdDoorStatus:
		return fmt.Sprintf("door=%d %s", f.Subcode, FormatStatus(f.Value))
	case CmdGetParam, CmdSetParam:
		return fmt.Sprintf("door=%d param=%d value=%d", f.Door(), f.Param(), f.Value)
	case CmdDoorMotion:
		dir := "close"
		if f.Value == 1 {
			dir = "open"
		}
		return fmt.Sprintf("door=%d %s", f.Subcode, dir)
	}
	return fmt.Sprintf("subcode=%d value=%d", f.Subcode, f.Value)
}
