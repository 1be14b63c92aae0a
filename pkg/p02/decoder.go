// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import (
	"errors"
	"fmt"
	"time"
)

// Decode error classes. Individual errors wrap these with positional
// detail; match with errors.Is.
var (
	ErrChecksum = errors.New("checksum mismatch")
	ErrEscape   = errors.New("invalid escape sequence")
	ErrOverflow = errors.New("frame overflow")
)

// Decoder implements the P02 frame decoder state machine.
//
// Feed it one byte at a time; it accumulates the unescaped body in a fixed
// buffer and emits a frame once the declared length and checksum line up.
// Malformed input never stops the stream: the decoder reports an error,
// resynchronizes to the next DLE STX, and keeps going.
type Decoder struct {
	state   int
	escaped bool
	buffer  [MaxFrameLen]byte
	n       int
}

// NewDecoder creates a new frame decoder hunting for a marker byte.
func NewDecoder() *Decoder {
	return &Decoder{state: stateAwaitMarker}
}

// Reset returns the decoder to marker hunting and drops any partial frame.
func (d *Decoder) Reset() {
	d.state = stateAwaitMarker
	d.escaped = false
	d.n = 0
}

// Armed reports whether the decoder has consumed a marker byte and is
// waiting for STX. The handshake fast path leaves the decoder here.
func (d *Decoder) Armed() bool {
	return d.state == stateAwaitStart
}

// Idle reports whether the decoder is between frames hunting for a marker.
// Line bytes arriving now are handshake traffic, not frame body.
func (d *Decoder) Idle() bool {
	return d.state == stateAwaitMarker
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil while the frame is incomplete.
// Returns an error when a frame is discarded; the decoder has already
// resynchronized and the next byte may be fed as usual.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateAwaitMarker:
		if b == DLE {
			d.state = stateAwaitStart
		}
		return nil, nil

	case stateAwaitStart:
		switch b {
		case STX:
			d.beginFrame()
		case DLE:
			// still armed, a marker run collapses to one
		default:
			d.state = stateAwaitMarker
		}
		return nil, nil

	case stateInFrame:
		if d.escaped {
			d.escaped = false
			switch b {
			case DLE:
				// doubled marker, a literal 0x10 data byte
				return d.appendBody(DLE)
			case ETX:
				f, err := d.closePartial()
				d.Reset()
				return f, err
			case STX:
				// peer opened a new frame without terminating the old one
				f, err := d.closePartial()
				d.beginFrame()
				return f, err
			default:
				err := fmt.Errorf("%w: 0x10 0x%02X after %d body bytes", ErrEscape, b, d.n)
				d.Reset()
				return nil, err
			}
		}
		if b == DLE {
			d.escaped = true
			return nil, nil
		}
		return d.appendBody(b)

	default:
		d.Reset()
		return nil, nil
	}
}

// beginFrame enters body accumulation with an empty buffer.
func (d *Decoder) beginFrame() {
	d.state = stateInFrame
	d.escaped = false
	d.n = 0
}

// appendBody stores one unescaped body byte and runs the completion checks.
func (d *Decoder) appendBody(b byte) (*Frame, error) {
	if d.n >= MaxFrameLen {
		err := fmt.Errorf("%w: body exceeds %d bytes", ErrOverflow, MaxFrameLen)
		d.Reset()
		return nil, err
	}
	d.buffer[d.n] = b
	d.n++

	// The 5th body byte declares the data length.
	if d.n == HeaderLen {
		if int(d.buffer[HeaderLen-1]) > MaxDataLen {
			err := fmt.Errorf("%w: declared length %d (max %d)", ErrOverflow, d.buffer[HeaderLen-1], MaxDataLen)
			d.Reset()
			return nil, err
		}
		return nil, nil
	}

	if d.n > HeaderLen && d.n == HeaderLen+int(d.buffer[HeaderLen-1])+1 {
		// Structurally complete: header, declared data, one BCC byte.
		f, err := d.finishFrame(d.n)
		d.Reset()
		return f, err
	}
	return nil, nil
}

// closePartial handles an early terminator: with at least a header and one
// trailing byte buffered the decoder treats the last byte as the BCC and
// salvages the frame if it verifies. Shorter fragments are dropped without
// comment.
func (d *Decoder) closePartial() (*Frame, error) {
	if d.n < HeaderLen+1 {
		return nil, nil
	}
	return d.finishFrame(d.n)
}

// finishFrame verifies the BCC over body[0:n-1] against body[n-1] and
// builds the frame. The data slice is copied out of the reusable buffer.
func (d *Decoder) finishFrame(n int) (*Frame, error) {
	body := d.buffer[:n-1]
	want := d.buffer[n-1]
	if got := Checksum(body); got != want {
		return nil, fmt.Errorf("%w: computed 0x%02X, frame carries 0x%02X", ErrChecksum, got, want)
	}

	dataLen := len(body) - HeaderLen
	data := make([]byte, dataLen)
	copy(data, body[HeaderLen:])

	return &Frame{
		Source:    body[0],
		Dest:      body[1],
		FrameID:   body[2],
		Control:   body[3],
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}
