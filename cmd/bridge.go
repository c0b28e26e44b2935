// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/bridge"
	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/door"
	"github.com/Thermoquad/rooftop/pkg/netmon"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
	"github.com/Thermoquad/rooftop/pkg/pico"
)

var (
	capturePath   string
	statsInterval time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Relay bus commands to the pico over serial",
	Long: `Subscribe to the bus command channel, encode each command as a 4-byte frame
and write it to the serial port. Frames received from the pico are decoded and
written to bus keys for the drivers to read.

Supports both serial and WebSocket connections.`,
	RunE: runBridge,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run every driver and the serial bridge in one process",
	Long: `Serve the roof, pico and network monitor devices on stdin/stdout and relay
their commands to the pico through an in-process bus. No external bus broker
is needed.

The WebSocket password must come from ROOFTOP_PASSWORD since stdin carries
the device protocol.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(gatewayCmd)

	for _, c := range []*cobra.Command{bridgeCmd, gatewayCmd} {
		c.Flags().StringVar(&capturePath, "capture", "", "Append every frame to a CBOR capture file")
		c.Flags().DurationVar(&statsInterval, "stats", 0, "Log frame statistics at this interval (0 disables)")
	}
	gatewayCmd.Flags().BoolVar(&noHome, "no-home", false, "Skip the slow close of both doors on startup")
}

// openCapture opens the capture file, if any, in append mode
func openCapture() (*picoframe.CaptureWriter, io.Closer, error) {
	path := capturePath
	if path == "" {
		path = cfg.Serial.Capture
	}
	if path == "" {
		return nil, nil, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	log.WithField("path", path).Info("Capturing frames")
	return picoframe.NewCaptureWriter(file), file, nil
}

// startBridge connects the serial side and runs a bridge on b in the background.
// The returned channel yields the bridge's exit error.
func startBridge(ctx context.Context, b bus.Bus, allowPrompt bool) (<-chan error, func(), error) {
	conn, connInfo, err := OpenConnection(allowPrompt)
	if err != nil {
		return nil, nil, err
	}

	capture, captureFile, err := openCapture()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	cleanup := func() {
		conn.Close()
		if captureFile != nil {
			captureFile.Close()
		}
	}

	br := bridge.New(b, conn, log, bridge.Options{Capture: capture})
	log.WithField("connection", connInfo).Info("Bridge started")

	if statsInterval > 0 {
		go logStatistics(ctx, br.Statistics())
	}

	done := make(chan error, 1)
	go func() {
		done <- br.Run(ctx)
	}()
	return done, cleanup, nil
}

func logStatistics(ctx context.Context, stats *picoframe.Statistics) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c := stats.Snapshot()
			log.WithFields(logrus.Fields{
				"frames":    c.TotalFrames,
				"resyncs":   c.Resyncs,
				"unknown":   c.UnknownCommands,
				"anomalies": c.AnomalousValues,
			}).Info("Frame statistics")
		}
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	b, err := openBus(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	startMetrics(ctx)

	done, cleanup, err := startBridge(ctx, b, true)
	if err != nil {
		return err
	}
	defer cleanup()

	err = <-done
	if errors.Is(err, ErrConnectionClosed) {
		log.Info("Connection closed")
		return nil
	}
	return err
}

func runGateway(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	opts, err := doorOptions()
	if err != nil {
		return err
	}

	b := bus.NewMemory()
	defer b.Close()

	startMetrics(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done, cleanup, err := startBridge(ctx, b, false)
	if err != nil {
		return err
	}
	defer cleanup()

	// a failed serial link ends the gateway
	go func() {
		if err := <-done; err != nil {
			log.WithError(err).Error("Bridge stopped")
		}
		cancel()
	}()

	roof := door.NewDevice(b, log, opts)
	pi := pico.NewDevice(b, log, pico.Options{})
	hb := netmon.NewHeartbeat(log, netmon.Options{})

	if homeOnStart(cfg.Door, noHome) {
		log.Info("Homing doors")
		roof.Home(ctx)
	}

	props := append(roof.Properties(), pi.Properties()...)
	props = append(props, hb)
	tasks := append(roof.Tasks(), pi.Tasks()...)
	tasks = append(tasks, hb)

	log.Info("Gateway started")
	return runDriver(ctx, props, tasks)
}
