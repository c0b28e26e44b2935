// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

var (
	rawLogRecord string
	rawLogReplay string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display pico frames as they arrive, showing each
frame with timestamp, command name, raw bytes and decoded meaning.

With --record every frame is also appended to a CBOR capture file. With
--replay a capture file, from raw_log or the bridge, is printed instead of
reading the connection.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Append frames to a CBOR capture file")
	rawLogCmd.Flags().StringVar(&rawLogReplay, "replay", "", "Print a CBOR capture file and exit")
}

func directionArrow(direction uint8) string {
	if direction == picoframe.ToPico {
		return "->"
	}
	return "<-"
}

func runRawLog(cmd *cobra.Command, args []string) error {
	if rawLogReplay != "" {
		return replayCapture(rawLogReplay)
	}

	ctx, stop := signalContext()
	defer stop()

	conn, connInfo, err := OpenConnection(true)
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *picoframe.CaptureWriter
	if rawLogRecord != "" {
		file, err := os.OpenFile(rawLogRecord, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open capture file %s: %w", rawLogRecord, err)
		}
		defer file.Close()
		capture = picoframe.NewCaptureWriter(file)
	}

	fmt.Printf("Rooftop - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := picoframe.NewDecoder()
	decoder.OnResync = func(discarded int) {
		fmt.Printf("[RESYNC] discarded %d bytes\n", discarded)
	}

	for ctx.Err() == nil {
		frame, err := decoder.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Info("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		if frame == nil {
			continue
		}

		fmt.Printf("%s %s\n", directionArrow(picoframe.FromPico), picoframe.FormatFrame(frame))
		if capture != nil {
			if err := capture.Write(frame, picoframe.FromPico); err != nil {
				return err
			}
		}
	}

	fmt.Printf("\n%s", decoder.Statistics().String())
	return nil
}

func replayCapture(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	defer file.Close()

	reader := picoframe.NewCaptureReader(file)
	count := 0
	for {
		frame, direction, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", directionArrow(direction), picoframe.FormatFrame(frame))
		count++
	}

	fmt.Printf("\n%d frames\n", count)
	return nil
}
