// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownCommand AnomalyType = iota
	AnomalyInvalidPWM
	AnomalyInvalidStatus
	AnomalyInvalidDoor
	AnomalyInvalidValue
	AnomalyResync
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame detects anomalies in a frame.
// Returns a slice of validation errors (empty if the frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}

	if door := f.Door(); door >= DoorCount {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidDoor,
			Message: fmt.Sprintf("Invalid door index %d (max %d)", door, DoorCount-1),
			Details: map[string]interface{}{"door": door, "max": DoorCount - 1},
		})
	}

	switch f.Command {
	case CmdLED:
		if f.Subcode != LEDPin || f.Value > 1 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid LED frame pin=%d state=%d", f.Subcode, f.Value),
				Details: map[string]interface{}{"pin": f.Subcode, "state": f.Value},
			})
		}
	case CmdPWM:
		if f.Value > MaxPWM {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidPWM,
				Message: fmt.Sprintf("PWM ratio %d out of range (max %d)", f.Value, MaxPWM),
				Details: map[string]interface{}{"pwm": f.Value, "max": MaxPWM},
			})
		}
	case CmdDirection:
		if f.Value > DirectionOpen {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid direction %d", f.Value),
				Details: map[string]interface{}{"direction": f.Value},
			})
		}
	case CmdDoorStatus:
		if f.Value > MaxStatusCode {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidStatus,
				Message: fmt.Sprintf("Limit switch code %d out of range (max %d)", f.Value, MaxStatusCode),
				Details: map[string]interface{}{"code": f.Value, "max": MaxStatusCode},
			})
		}
	case CmdTemperature:
		if f.Subcode != TempLowChannel && f.Subcode != TempHighChannel {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid ADC channel %d", f.Subcode),
				Details: map[string]interface{}{"channel": f.Subcode},
			})
		}
	case CmdMonitor, CmdGetParam, CmdSetParam, CmdDoorMotion:
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("Unknown command 0x%02X", f.Command),
			Details: map[string]interface{}{"command": f.Command},
		})
	}

	return errors
}
