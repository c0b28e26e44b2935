// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/config"
	"github.com/Thermoquad/rooftop/pkg/door"
	"github.com/Thermoquad/rooftop/pkg/driver"
	"github.com/Thermoquad/rooftop/pkg/indi"
	"github.com/Thermoquad/rooftop/pkg/netmon"
	"github.com/Thermoquad/rooftop/pkg/pico"
)

var noHome bool

var doorDriverCmd = &cobra.Command{
	Use:   "doordriver",
	Short: "Run the roll-off roof driver on stdin/stdout",
	Long: `Run the roof device driver: the two door motors, the status lights and the
shutter switch. Motion commands are published to the bus, limit switch codes
and door parameters are read back from bus keys.

Both doors slowly close on startup to find their limit switches; --no-home
skips this. Door parameters are saved to LEFT_DOOR and RIGHT_DOOR in the
configured parameter directory.`,
	RunE: runDoorDriver,
}

var picoDriverCmd = &cobra.Command{
	Use:   "picodriver",
	Short: "Run the pico driver on stdin/stdout",
	Long: `Run the pico device driver: the on-board LED, the communication monitor and
the atmosphere temperature reading.`,
	RunE: runPicoDriver,
}

var netMonitorCmd = &cobra.Command{
	Use:   "netmonitor",
	Short: "Run the network heartbeat driver on stdin/stdout",
	Long: `Emit a keep-alive text vector every 10 seconds. A client seeing an older
timestamp knows the connection has failed.`,
	RunE: runNetMonitor,
}

func init() {
	rootCmd.AddCommand(doorDriverCmd)
	rootCmd.AddCommand(picoDriverCmd)
	rootCmd.AddCommand(netMonitorCmd)
	doorDriverCmd.Flags().BoolVar(&noHome, "no-home", false, "Skip the slow close of both doors on startup")
}

// doorOptions builds the door options from the configuration
// homeOnStart reports whether the doors are slowly closed before serving
func homeOnStart(dc config.DoorConfig, skip bool) bool {
	return dc.Home && !skip
}

func doorOptions() (door.Options, error) {
	profile, err := door.NewProfile(cfg.Door.Profile)
	if err != nil {
		return door.Options{}, err
	}
	return door.Options{
		Profile:  profile,
		ParamDir: cfg.Door.ParamDir,
	}, nil
}

func runDoorDriver(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	opts, err := doorOptions()
	if err != nil {
		return err
	}

	b, err := openBus(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	startMetrics(ctx)

	dev := door.NewDevice(b, log, opts)
	if homeOnStart(cfg.Door, noHome) {
		log.Info("Homing doors")
		dev.Home(ctx)
	}

	log.WithField("device", door.DeviceName).Info("Driver started")
	return runDriver(ctx, dev.Properties(), dev.Tasks())
}

func runPicoDriver(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	b, err := openBus(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	startMetrics(ctx)

	dev := pico.NewDevice(b, log, pico.Options{})

	log.WithField("device", pico.DeviceName).Info("Driver started")
	return runDriver(ctx, dev.Properties(), dev.Tasks())
}

func runNetMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	startMetrics(ctx)

	hb := netmon.NewHeartbeat(log, netmon.Options{})

	log.WithField("device", netmon.DeviceName).Info("Driver started")
	return runDriver(ctx, []indi.Property{hb}, []driver.Task{hb})
}
