// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

var pingTimeout int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the serial link by waiting for a monitor echo",
	Long: `Send a monitor frame to the pico and wait for the echo of the same value.
Frames with other content are ignored.

Exit codes:
  0 - Echo received before timeout
  1 - Timeout reached without an echo
  2 - Connection error

Do not run this while the bridge holds the port.`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 10, "Timeout in seconds to wait for the echo")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	value := 1 + rand.Intn(254)
	request := picoframe.EncodeCommand(picoframe.MonitorCommand(value))

	fmt.Printf("Rooftop - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", pingTimeout)
	fmt.Printf("Sending monitor echo %d...\n\n", value)

	start := time.Now()
	if _, err := conn.Write(request); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	echoChan := make(chan *picoframe.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		decoder := picoframe.NewDecoder()
		skipped := 0
		for {
			frame, err := decoder.ReadFrame(conn)
			if err != nil {
				errChan <- err
				return
			}
			if frame == nil {
				continue
			}
			if frame.Command == picoframe.CmdMonitor && int(frame.Value) == value {
				if skipped > 0 {
					fmt.Printf("(skipped %d unrelated frames)\n", skipped)
				}
				echoChan <- frame
				return
			}
			skipped++
		}
	}()

	select {
	case frame := <-echoChan:
		fmt.Printf("SUCCESS: Received echo\n")
		fmt.Printf("  Frame: %s\n", picoframe.FormatFrame(frame))
		fmt.Printf("  Round trip: %v\n", time.Since(start).Round(time.Millisecond))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(pingTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No echo received within %d seconds\n", pingTimeout)
		os.Exit(1)
	}

	return nil
}
