// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import "time"

// SynInterval is the minimum spacing between SYN transmissions on one
// channel, however many NAKs the station fires off in between.
const SynInterval = 1500 * time.Millisecond

// Shared reply singletons so Feed never allocates.
var (
	synReply = []byte{SYN}
	ackReply = []byte{ACK}
)

// HandshakeEvent is the outcome of feeding one byte to the handshake.
type HandshakeEvent struct {
	Send       []byte // bytes to transmit to the station, nil for none
	FrameMode  bool   // frame mode entered on this byte
	Connecting bool   // negotiation completed, link may advance
}

// Handshake implements the pre-frame link negotiation state machine.
//
// A station announces itself with NAK bytes; the extractor answers SYN,
// the station ACKs, the extractor ACKs back, and a final SOH/ACK exchange
// opens frame mode. A DLE in any state is a station already talking frames
// and short-circuits the whole dance.
type Handshake struct {
	state   HandshakeState
	lastSyn time.Time
}

// NewHandshake creates a handshake machine in the Idle state.
func NewHandshake() *Handshake {
	return &Handshake{state: HandshakeIdle}
}

// Reset returns the machine to Idle and clears the SYN rate-limit clock.
func (h *Handshake) Reset() {
	h.state = HandshakeIdle
	h.lastSyn = time.Time{}
}

// State returns the current handshake state.
func (h *Handshake) State() HandshakeState {
	return h.state
}

// InFrameMode reports whether negotiation is finished and bytes belong to
// the frame decoder.
func (h *Handshake) InFrameMode() bool {
	return h.state == HandshakeFrameMode
}

// Feed processes one received byte. The caller transmits Send (if any) and,
// when FrameMode turns true on a DLE byte, hands that same byte to the
// decoder so it starts out waiting for the second marker byte.
func (h *Handshake) Feed(b byte, now time.Time) HandshakeEvent {
	if h.state == HandshakeFrameMode {
		return HandshakeEvent{FrameMode: true}
	}

	if b == DLE {
		h.state = HandshakeFrameMode
		return HandshakeEvent{FrameMode: true}
	}

	switch b {
	case NAK:
		switch h.state {
		case HandshakeIdle, HandshakeSeenNak, HandshakeSentSyn:
			if h.lastSyn.IsZero() || now.Sub(h.lastSyn) >= SynInterval {
				h.lastSyn = now
				h.state = HandshakeSentSyn
				return HandshakeEvent{Send: synReply}
			}
			h.state = HandshakeSeenNak
		}

	case ACK:
		if h.state == HandshakeSentSyn {
			h.state = HandshakeSentAck2
			return HandshakeEvent{Send: ackReply}
		}

	case SOH:
		if h.state == HandshakeSentAck2 {
			h.state = HandshakeFrameMode
			return HandshakeEvent{Send: ackReply, FrameMode: true, Connecting: true}
		}

	case RST:
		h.Reset()
	}

	return HandshakeEvent{}
}
