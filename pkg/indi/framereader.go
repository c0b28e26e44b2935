// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indi

import (
	"bytes"
	"fmt"
)

// DefaultMaxMessageSize caps the accumulation buffer of a FrameReader
const DefaultMaxMessageSize = 64 * 1024

// StartTags is the ordered table of root tags a client may send
var StartTags = []string{
	TagGetProperties,
	TagNewTextVector,
	TagNewNumberVector,
	TagNewSwitchVector,
	TagNewBLOBVector,
}

var (
	startTags [][]byte
	endTags   [][]byte
)

func init() {
	for _, tag := range StartTags {
		startTags = append(startTags, []byte("<"+tag))
		endTags = append(endTags, []byte("</"+tag+">"))
	}
}

// FrameReader segments an inbound byte stream into complete messages.
//
// Bytes may arrive in chunks of any size. The stream is cut after each '>'
// and every piece is examined in turn: a piece that opens a message must
// start with one of StartTags, later pieces are appended until the buffer
// ends with the matching end tag. Pieces that cannot start a message, and
// messages that fail to parse, are silently dropped.
type FrameReader struct {
	pending []byte // bytes not yet terminated by '>'
	buffer  []byte // message under construction
	tag     int    // index into StartTags, -1 when idle
	maxSize int

	onMessage func(*Message)

	// OnDrop, if set, is called with the reason each time data is discarded
	OnDrop func(reason error)
}

// NewFrameReader creates a reader calling onMessage once per parsed message
func NewFrameReader(onMessage func(*Message)) *FrameReader {
	return &FrameReader{
		tag:       -1,
		maxSize:   DefaultMaxMessageSize,
		onMessage: onMessage,
	}
}

// SetMaxSize changes the accumulation limit. Values <= 0 restore the default.
func (f *FrameReader) SetMaxSize(n int) {
	if n <= 0 {
		n = DefaultMaxMessageSize
	}
	f.maxSize = n
}

// Reset discards any partial message
func (f *FrameReader) Reset() {
	f.pending = f.pending[:0]
	f.buffer = f.buffer[:0]
	f.tag = -1
}

// Buffered returns the number of bytes held while waiting for more input
func (f *FrameReader) Buffered() int {
	return len(f.pending) + len(f.buffer)
}

// Feed processes the next chunk of the stream
func (f *FrameReader) Feed(chunk []byte) {
	f.pending = append(f.pending, chunk...)

	for {
		i := bytes.IndexByte(f.pending, '>')
		if i < 0 {
			break
		}
		f.feedPiece(f.pending[:i+1])
		n := copy(f.pending, f.pending[i+1:])
		f.pending = f.pending[:n]
	}

	if len(f.pending)+len(f.buffer) > f.maxSize {
		f.drop(fmt.Errorf("message exceeds %d bytes", f.maxSize))
	}
}

func (f *FrameReader) feedPiece(piece []byte) {
	if f.tag < 0 {
		piece = bytes.TrimSpace(piece)
		f.tag = matchStartTag(piece)
		if f.tag < 0 {
			if len(piece) > 0 {
				f.notifyDrop(fmt.Errorf("unrecognised data %.32q", piece))
			}
			return
		}
		f.buffer = append(f.buffer[:0], piece...)
		if bytes.HasSuffix(piece, []byte("/>")) {
			f.complete()
		}
		return
	}

	f.buffer = append(f.buffer, piece...)
	if len(f.buffer) > f.maxSize {
		// pending still holds the unread rest of the chunk
		f.buffer = f.buffer[:0]
		f.tag = -1
		f.notifyDrop(fmt.Errorf("message exceeds %d bytes", f.maxSize))
		return
	}
	if bytes.HasSuffix(f.buffer, endTags[f.tag]) {
		f.complete()
	}
}

func (f *FrameReader) complete() {
	msg, err := ParseMessage(f.buffer)
	f.buffer = f.buffer[:0]
	f.tag = -1
	if err != nil {
		f.notifyDrop(err)
		return
	}
	if f.onMessage != nil {
		f.onMessage(msg)
	}
}

func (f *FrameReader) drop(reason error) {
	f.Reset()
	f.notifyDrop(reason)
}

func (f *FrameReader) notifyDrop(reason error) {
	if f.OnDrop != nil {
		f.OnDrop(reason)
	}
}

func matchStartTag(piece []byte) int {
	for i, st := range startTags {
		if bytes.HasPrefix(piece, st) {
			return i
		}
	}
	return -1
}
