// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import "fmt"

// Command builders return the bus command strings understood by
// EncodeCommand. Drivers publish these on the command channel and the serial
// bridge turns them into frames.

// LEDCommand switches the on-board LED
func LEDCommand(on bool) string {
	if on {
		return "pico_led_On"
	}
	return "pico_led_Off"
}

// MonitorCommand asks the microcontroller to echo n back
func MonitorCommand(n int) string {
	return fmt.Sprintf("pico_monitor_%d", n)
}

// TemperatureCommand requests an ADC reading of the temperature sensor
func TemperatureCommand() string {
	return "pico_temperature"
}

// DirectionCommand sets the travel direction of a door motor
func DirectionCommand(door int, open bool) string {
	v := DirectionClose
	if open {
		v = DirectionOpen
	}
	return fmt.Sprintf("pico_door%d_direction_%d", door, v)
}

// PWMCommand sets the motor pwm ratio of a door, 0 stops it
func PWMCommand(door, pwm int) string {
	return fmt.Sprintf("pico_door%d_pwm_%d", door, pwm)
}

// MotionCommand asks the microcontroller to run a door to a limit itself
func MotionCommand(door int, open bool) string {
	if open {
		return fmt.Sprintf("pico_door%d_open", door)
	}
	return fmt.Sprintf("pico_door%d_close", door)
}

// GetParamCommand requests readback of a stored door parameter
func GetParamCommand(door, index int) string {
	return fmt.Sprintf("pico_door%d_getparam_%d", door, index)
}

// SetParamCommand stores a door parameter on the microcontroller
func SetParamCommand(door, index, value int) string {
	return fmt.Sprintf("pico_door%d_setparam_%d_%d", door, index, value)
}

// Bus keys written from received frames

const (
	KeyLED         = "pico_led"
	KeyMonitor     = "pico_monitor"
	KeyTemperature = "pico_temperature"
)

// DoorStatusKey holds the limit-switch status code of a door
func DoorStatusKey(door int) string {
	return fmt.Sprintf("pico_door%d_status", door)
}

// DoorParamKey holds a parameter read back from the microcontroller
func DoorParamKey(door, index int) string {
	return fmt.Sprintf("pico_door%d_param%d", door, index)
}
