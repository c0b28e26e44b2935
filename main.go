// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Rooftop - Roll-off roof observatory gateway
//
// Device drivers for the roof doors and the pico microcontroller, speaking
// the XML device protocol on stdin/stdout, and the serial bridge that relays
// their commands to the hardware.

package main

import (
	"os"

	"github.com/Thermoquad/rooftop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
