// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import (
	"errors"
	"io"
	"strconv"
	"time"
)

// Decoder reads frames from a serial stream and turns them into events.
//
// The reader is expected to return (0, nil) when its read timeout elapses,
// which is how go.bug.st/serial reports a timeout.
type Decoder struct {
	stats *Statistics

	// tempHigh is the high byte of the next temperature reading
	tempHigh uint8

	// OnResync, if set, is called after every terminator mismatch
	OnResync func(discarded int)
}

// NewDecoder creates a decoder with fresh statistics
func NewDecoder() *Decoder {
	return &Decoder{stats: NewStatistics()}
}

// Statistics returns the decoder's counters
func (d *Decoder) Statistics() *Statistics {
	return d.stats
}

// ReadFrame reads one frame from r.
//
// It returns (nil, nil) when fewer than four bytes arrive before the read
// times out, or when the frame is misaligned. A misaligned frame triggers a
// resync: single bytes are consumed until a terminator is seen or the read
// times out. Errors from r, including io.EOF, are returned as is.
func (d *Decoder) ReadFrame(r io.Reader) (*Frame, error) {
	buf := make([]byte, FrameSize)
	n, err := readFull(r, buf)
	if err != nil {
		return nil, err
	}
	if n < FrameSize {
		if n > 0 {
			d.stats.recordShortRead()
		}
		return nil, nil
	}

	if buf[FrameSize-1] != Terminator {
		discarded, err := d.resync(r)
		d.stats.recordResync(FrameSize + discarded)
		if d.OnResync != nil {
			d.OnResync(FrameSize + discarded)
		}
		return nil, err
	}

	f := &Frame{
		Command:   buf[0],
		Subcode:   buf[1],
		Value:     buf[2],
		Timestamp: time.Now(),
	}
	d.stats.recordFrame()
	return f, nil
}

// resync consumes bytes up to and including the next terminator
func (d *Decoder) resync(r io.Reader) (int, error) {
	b := make([]byte, 1)
	discarded := 0
	for {
		n, err := r.Read(b)
		if n == 1 {
			if b[0] == Terminator {
				return discarded, nil
			}
			discarded++
			continue
		}
		if err != nil {
			return discarded, err
		}
		// timeout
		return discarded, nil
	}
}

// readFull fills buf until it is full, the reader times out or fails
func readFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) && total == len(buf) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Decode maps a received frame to the bus key it updates.
// Frames that carry no standalone state, such as the high byte of a
// temperature reading, and unknown commands return nil.
func (d *Decoder) Decode(f *Frame) *Event {
	switch f.Command {
	case CmdLED:
		if f.Subcode != LEDPin {
			break
		}
		switch f.Value {
		case 0:
			return newEvent(f, KeyLED, "Off")
		case 1:
			return newEvent(f, KeyLED, "On")
		}

	case CmdMonitor:
		return newEvent(f, KeyMonitor, strconv.Itoa(int(f.Value)))

	case CmdTemperature:
		switch f.Subcode {
		case TempHighChannel:
			d.tempHigh = f.Value
			return nil
		case TempLowChannel:
			raw := int(d.tempHigh)<<8 | int(f.Value)
			d.tempHigh = 0
			return newEvent(f, KeyTemperature, strconv.Itoa(raw))
		}

	case CmdDoorStatus:
		if int(f.Subcode) >= DoorCount {
			break
		}
		return newEvent(f, DoorStatusKey(int(f.Subcode)), strconv.Itoa(int(f.Value)))

	case CmdGetParam:
		if f.Door() >= DoorCount {
			break
		}
		return newEvent(f, DoorParamKey(f.Door(), f.Param()), strconv.Itoa(int(f.Value)))
	}

	d.stats.recordUnknown()
	return nil
}
