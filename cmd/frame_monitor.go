// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

var (
	showAll           bool
	monitorStatsEvery int
	useTUI            bool
)

var frameMonitorCmd = &cobra.Command{
	Use:   "frame_monitor",
	Short: "Detect and analyze misaligned frames and anomalous values",
	Long: `Track frame alignment errors, unknown commands and anomalous values with
statistics.

This command validates each frame from the pico and detects:
  - Misaligned frames (missing 0xFF terminator, resynchronisation)
  - Short reads (partial frames at a read timeout)
  - Unknown commands and invalid door indices
  - Anomalous values (PWM > 100, limit switch codes > 6)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.

Do not run this while the bridge holds the port.`,
	RunE: runFrameMonitor,
}

func init() {
	rootCmd.AddCommand(frameMonitorCmd)
	frameMonitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	frameMonitorCmd.Flags().IntVar(&monitorStatsEvery, "stats-interval", 10, "Statistics update interval (seconds)")
	frameMonitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runFrameMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(true)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// frameReader decodes frames from r and reports them through the callbacks
// until r fails. Resyncs before the first frame are counted as skipped bytes.
type frameReader struct {
	decoder      *picoframe.Decoder
	synchronized bool
	skipped      int

	onSync   func(skipped int)
	onResync func(discarded int)
	onFrame  func(frame *picoframe.Frame, event *picoframe.Event, validationErrors []picoframe.ValidationError)
}

func newFrameReader() *frameReader {
	fr := &frameReader{decoder: picoframe.NewDecoder()}
	fr.decoder.OnResync = func(discarded int) {
		if !fr.synchronized {
			fr.skipped += discarded
			return
		}
		if fr.onResync != nil {
			fr.onResync(discarded)
		}
	}
	return fr
}

func (fr *frameReader) run(r io.Reader) error {
	for {
		frame, err := fr.decoder.ReadFrame(r)
		if err != nil {
			return err
		}
		if frame == nil {
			continue
		}

		if !fr.synchronized {
			fr.synchronized = true
			if fr.onSync != nil {
				fr.onSync(fr.skipped)
			}
		}

		validationErrors := picoframe.ValidateFrame(frame)
		fr.decoder.Statistics().Update(validationErrors)
		event := fr.decoder.Decode(frame)
		if fr.onFrame != nil {
			fr.onFrame(frame, event, validationErrors)
		}
	}
}

// printResync prints a misaligned frame in highlighted format
func printResync(discarded int) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mRESYNC:\033[0m frame misaligned, %d bytes discarded\n", timestamp, discarded)
	fmt.Printf("  >>> FRAME LOST <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(frame *picoframe.Frame, errs []picoframe.ValidationError) {
	timestamp := frame.Timestamp.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s [%d %d %d 0xFF]\n", timestamp,
		picoframe.FormatCommand(frame.Command), frame.Command, frame.Subcode, frame.Value)

	for i, err := range errs {
		switch err.Type {
		case picoframe.AnomalyUnknownCommand, picoframe.AnomalyInvalidDoor:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case picoframe.AnomalyInvalidPWM:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if pwm, ok := err.Details["pwm"].(uint8); ok {
				fmt.Printf("    pwm=%d%% (max %d%%)\n", pwm, picoframe.MaxPWM)
			}

		case picoframe.AnomalyInvalidStatus:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if code, ok := err.Details["code"].(uint8); ok {
				fmt.Printf("    code=%d (valid: 0 to %d)\n", code, picoframe.MaxStatusCode)
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTUIMode runs the frame monitor in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	fr := newFrameReader()

	m := initialModel(connInfo, fr.decoder.Statistics(), showAll)
	p := tea.NewProgram(m)

	fr.onSync = func(skipped int) {
		p.Send(syncMsg{invalidBytes: skipped})
	}
	fr.onResync = func(discarded int) {
		p.Send(resyncMsg{discarded: discarded})
	}
	fr.onFrame = func(frame *picoframe.Frame, event *picoframe.Event, validationErrors []picoframe.ValidationError) {
		p.Send(frameMsg{frame: frame, event: event, validationErrors: validationErrors})
	}

	go func() {
		err := fr.run(conn)
		p.Send(readErrMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs the frame monitor in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("Rooftop - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", monitorStatsEvery)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

	fr := newFrameReader()
	stats := fr.decoder.Statistics()

	type frameData struct {
		frame            *picoframe.Frame
		validationErrors []picoframe.ValidationError
	}
	frames := make(chan frameData, 16)
	resyncs := make(chan int, 16)
	syncs := make(chan int, 1)
	readErr := make(chan error, 1)

	fr.onSync = func(skipped int) { syncs <- skipped }
	fr.onResync = func(discarded int) { resyncs <- discarded }
	fr.onFrame = func(frame *picoframe.Frame, _ *picoframe.Event, validationErrors []picoframe.ValidationError) {
		frames <- frameData{frame: frame, validationErrors: validationErrors}
	}

	go func() {
		readErr <- fr.run(conn)
	}()

	statsTicker := time.NewTicker(time.Duration(monitorStatsEvery) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case skipped := <-syncs:
			if skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}

		case discarded := <-resyncs:
			printResync(discarded)

		case fd := <-frames:
			if len(fd.validationErrors) > 0 {
				printValidationErrors(fd.frame, fd.validationErrors)
			} else if fd.frame.Command == picoframe.CmdMonitor {
				// echoes confirm the link is alive
				fmt.Printf("%s\n\n", picoframe.FormatFrame(fd.frame))
			} else if showAll {
				fmt.Printf("%s\n", picoframe.FormatFrame(fd.frame))
			}

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}
