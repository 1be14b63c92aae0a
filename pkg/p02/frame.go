// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import "time"

// Frame represents one decoded P02 frame
type Frame struct {
	Source    byte
	Dest      byte
	FrameID   byte
	Control   byte
	Data      []byte
	Timestamp time.Time
}

// NewFrame creates a frame with the given fields
func NewFrame(source, dest, frameID, control byte, data []byte) *Frame {
	return &Frame{
		Source:    source,
		Dest:      dest,
		FrameID:   frameID,
		Control:   control,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// IsBroadcast returns true if the frame is addressed to all devices
func (f *Frame) IsBroadcast() bool {
	return f.Dest == AddressBroadcast
}

// Reply builds a reply skeleton addressed back to the frame's source.
// ownAddr is the replying channel's adopted address; the frame ID is echoed.
func (f *Frame) Reply(ownAddr, control byte, data []byte) *Frame {
	return NewFrame(ownAddr, f.Source, f.FrameID, control, data)
}
