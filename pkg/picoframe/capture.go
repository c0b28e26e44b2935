// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured frame, stored as a CBOR array
type Record struct {
	_         struct{} `cbor:",toarray"`
	Timestamp int64    // unix nanoseconds
	Direction uint8
	Bytes     []byte
}

// Capture directions
const (
	FromPico uint8 = 0
	ToPico   uint8 = 1
)

// CaptureWriter appends frames to a capture stream
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter writes a sequence of CBOR records to w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write records a frame travelling in the given direction
func (c *CaptureWriter) Write(f *Frame, direction uint8) error {
	rec := Record{
		Timestamp: f.Timestamp.UnixNano(),
		Direction: direction,
		Bytes:     f.Bytes(),
	}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// CaptureReader replays a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader reads CBOR records from r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next captured frame and its direction.
// It returns io.EOF at the end of the stream.
func (c *CaptureReader) Next() (*Frame, uint8, error) {
	var rec Record
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("failed to decode capture record: %w", err)
	}
	if len(rec.Bytes) != FrameSize || rec.Bytes[FrameSize-1] != Terminator {
		return nil, 0, fmt.Errorf("invalid captured frame % X", rec.Bytes)
	}
	f := &Frame{
		Command:   rec.Bytes[0],
		Subcode:   rec.Bytes[1],
		Value:     rec.Bytes[2],
		Timestamp: time.Unix(0, rec.Timestamp),
	}
	return f, rec.Direction, nil
}
