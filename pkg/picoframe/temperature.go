// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

// ADC conversion for the RP2040 internal temperature sensor
const (
	adcReference = 3.3
	adcFullScale = 65535
	vbe27C       = 0.706
	vbeSlope     = 0.001721
	zeroCelsius  = 273.15
)

// ToKelvin converts a raw 16-bit temperature sensor reading to Kelvin
func ToKelvin(raw int) float64 {
	volts := float64(raw) * (adcReference / adcFullScale)
	return 27 - (volts-vbe27C)/vbeSlope + zeroCelsius
}
