// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge connects the bus to the microcontroller's serial port.
// Commands published on the bus are encoded as frames and written to the
// port; frames received from the port are decoded into bus keys.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/rooftop/pkg/bus"
	"github.com/Thermoquad/rooftop/pkg/driver"
	"github.com/Thermoquad/rooftop/pkg/metrics"
	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// DefaultQueueSize is the number of frames waiting for the port
const DefaultQueueSize = 16

// Options configures a Bridge
type Options struct {
	QueueSize int
	// Capture, if set, records every frame in both directions
	Capture *picoframe.CaptureWriter
}

// Bridge relays between a bus and a serial port.
//
// The port's Read must return (0, nil) when its read timeout elapses, as
// go.bug.st/serial does, so the receiver can notice cancellation.
type Bridge struct {
	bus     bus.Bus
	port    io.ReadWriter
	log     logrus.FieldLogger
	queue   *driver.Queue
	decoder *picoframe.Decoder

	captureMu sync.Mutex
	capture   *picoframe.CaptureWriter
}

// New creates a bridge between b and port
func New(b bus.Bus, port io.ReadWriter, log logrus.FieldLogger, opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	br := &Bridge{
		bus:     b,
		port:    port,
		log:     log,
		queue:   driver.NewQueue(opts.QueueSize),
		decoder: picoframe.NewDecoder(),
		capture: opts.Capture,
	}
	br.queue.OnDrop = func(frame []byte) {
		log.WithField("frame", fmt.Sprintf("% x", frame)).Warn("Serial queue full, dropped oldest frame")
	}
	br.decoder.OnResync = func(discarded int) {
		metrics.FrameResyncs.Inc()
		log.WithField("discarded", discarded).Debug("Frame misaligned, resynchronised")
	}
	return br
}

// Statistics returns the receive counters
func (br *Bridge) Statistics() *picoframe.Statistics {
	return br.decoder.Statistics()
}

// Enqueue encodes cmd and queues it for the port. It reports false for a
// command that does not translate to a frame.
func (br *Bridge) Enqueue(cmd string) bool {
	frame := picoframe.EncodeCommand(cmd)
	if frame == nil {
		metrics.CommandsIgnored.Inc()
		br.log.WithField("command", cmd).Debug("Ignoring unrecognised command")
		return false
	}
	br.queue.Push(frame)
	return true
}

// Run relays until ctx is done or the port fails
func (br *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands, err := br.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to bus: %w", err)
	}

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	for _, loop := range []func(context.Context) error{
		func(ctx context.Context) error { return br.forward(ctx, commands) },
		br.send,
		br.receive,
	} {
		wg.Add(1)
		go func(loop func(context.Context) error) {
			defer wg.Done()
			errs <- loop(ctx)
		}(loop)
	}

	br.log.Info("Serial bridge running")

	var runErr error
	select {
	case runErr = <-errs:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return runErr
}

// forward moves bus commands into the frame queue
func (br *Bridge) forward(ctx context.Context, commands <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("bus subscription closed")
			}
			br.Enqueue(cmd)
		}
	}
}

// send writes queued frames to the port
func (br *Bridge) send(ctx context.Context) error {
	for {
		frame, err := br.queue.Pop(ctx)
		if err != nil {
			return err
		}
		if _, err := br.port.Write(frame); err != nil {
			return fmt.Errorf("serial write failed: %w", err)
		}
		metrics.FramesSent.Inc()
		br.record(picoframe.NewFrame(frame[0], frame[1], frame[2]), picoframe.ToPico)
	}
}

// receive decodes frames from the port into bus keys
func (br *Bridge) receive(ctx context.Context) error {
	for ctx.Err() == nil {
		f, err := br.decoder.ReadFrame(br.port)
		if err != nil {
			return fmt.Errorf("serial read failed: %w", err)
		}
		if f == nil {
			continue
		}

		metrics.FramesReceived.WithLabelValues(commandLabel(f.Command)).Inc()
		br.decoder.Statistics().Update(picoframe.ValidateFrame(f))
		br.record(f, picoframe.FromPico)

		ev := br.decoder.Decode(f)
		if ev == nil {
			continue
		}
		br.log.WithField("event", ev.String()).Debug("Frame received")
		setCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = ev.Apply(setCtx, br.bus)
		cancel()
		if err != nil {
			br.log.WithError(err).Warn("Failed to store frame")
		}
	}
	return ctx.Err()
}

// commandLabel keeps the metric label set bounded
func commandLabel(cmd uint8) string {
	if cmd < picoframe.CmdLED || cmd > picoframe.CmdDoorMotion {
		return "unknown"
	}
	return picoframe.FormatCommand(cmd)
}

func (br *Bridge) record(f *picoframe.Frame, direction uint8) {
	if br.capture == nil {
		return
	}
	br.captureMu.Lock()
	defer br.captureMu.Unlock()
	if err := br.capture.Write(f, direction); err != nil {
		br.log.WithError(err).Warn("Capture write failed, capture stopped")
		br.capture = nil
	}
}
