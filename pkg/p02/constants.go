// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package p02 implements the extractor side of the JBC "P02" serial protocol.
//
// P02 is the binary protocol spoken between JBC soldering stations and fume
// extractors. This package provides the link handshake, frame
// encoding/decoding with DLE escaping, BCC validation, and frame formatting.
// It performs no IO; callers feed bytes in and transmit whatever comes back.
package p02

// Line-discipline bytes. The values are shared with the control-code space:
// a 0x06 on the bare line is an acknowledge, a 0x06 in a frame's control
// field is CmdAck.
const (
	SOH byte = 0x01 // start of header, final handshake step
	STX byte = 0x02 // second marker byte, opens a frame
	ETX byte = 0x03 // closes a frame (optional on receive)
	EOT byte = 0x04
	ACK byte = 0x06
	DLE byte = 0x10 // marker / escape byte
	NAK byte = 0x15 // station announcing itself
	SYN byte = 0x16
	RST byte = 0x20 // single-byte link reset
	FWQ byte = 0x21 // single-byte firmware query (framed form is CmdFirmware)
)

// Frame size limits. A frame body is 5 header bytes, up to MaxDataLen data
// bytes, and one checksum byte, all before escaping.
const (
	HeaderLen   = 5
	MaxDataLen  = 64
	MaxFrameLen = HeaderLen + MaxDataLen + 1
)

// Checksum seed. The BCC is this value XORed with every unescaped body byte
// up to but not including the checksum itself.
const bccSeed = 0x01

// Frame IDs. The station uses a dedicated frame ID for address assignment
// and another for all application traffic. These defaults can be overridden
// from configuration for nonstandard peers.
const (
	FIDHandshake byte = 0x00
	FIDProtocol  byte = 0x02
)

// AddressBroadcast is accepted by every device regardless of adoption.
const AddressBroadcast byte = 0x00

// Control codes - link and identity 0-33
const (
	CmdHandshake        = 0
	CmdAck              = 6
	CmdNak              = 21
	CmdDeviceIDOriginal = 28
	CmdDiscover         = 29
	CmdReadDeviceID     = 30
	CmdWriteDeviceID    = 31
	CmdReset            = 32
	CmdFirmware         = 33
)

// Control codes - firmware update block 34-41.
// Recognized and acknowledged; no flash is ever written.
const (
	CmdClearMemFlash  = 34
	CmdSendMemAddress = 35
	CmdSendMemData    = 36
	CmdEndProgram     = 37
	CmdEndUpdate      = 38
	CmdContinueUpdate = 39
	CmdClearing       = 40
	CmdForceUpdate    = 41
)

// Control codes - suction and intakes 48-60, 96
const (
	CmdReadSuctionLevel      = 48
	CmdWriteSuctionLevel     = 49
	CmdReadFlow              = 50
	CmdReadSpeed             = 51
	CmdReadSelectFlow        = 52
	CmdWriteSelectFlow       = 53
	CmdReadStandIntakes      = 54
	CmdWriteStandIntakes     = 55
	CmdReadIntakeActivation  = 56
	CmdWriteIntakeActivation = 57
	CmdReadSuctionDelay      = 58
	CmdWriteSuctionDelay     = 59
	CmdReadDelayTime         = 60
	CmdWriteWorkIntakes      = 96
)

// Control codes - pedal and filter 61-69
const (
	CmdReadPedalActivation  = 61
	CmdWritePedalActivation = 62
	CmdReadPedalMode        = 63
	CmdWritePedalMode       = 64
	CmdReadFilterStatus     = 65
	CmdResetFilter          = 66
	CmdReadConnectedPedal   = 68
	CmdReadFilterSat        = 69
)

// Control codes - station settings 80-94
const (
	CmdResetStation           = 80
	CmdReadPin                = 81
	CmdWritePin               = 82
	CmdReadStationLocked      = 83
	CmdWriteStationLocked     = 84
	CmdReadBeep               = 85
	CmdWriteBeep              = 86
	CmdReadContinuousSuction  = 87
	CmdWriteContinuousSuction = 88
	CmdReadStationError       = 89
	CmdReadDeviceName         = 91
	CmdWriteDeviceName        = 92
	CmdReadPinEnabled         = 93
	CmdWritePinEnabled        = 94
)

// Control codes - filter counters 192-195.
// Named for the sniffer; the payload layout is undocumented and the
// emulator leaves them unanswered.
const (
	CmdReadCounters         = 192
	CmdResetCounters        = 193
	CmdReadCountersPartial  = 194
	CmdResetCountersPartial = 195
)

// Control codes - USB 224-225
const (
	CmdReadUSBConnect  = 224
	CmdWriteUSBConnect = 225
)

// Control codes - robot connection 240-243.
// Named for the sniffer; the payload layout is undocumented and the
// emulator leaves them unanswered.
const (
	CmdReadRobotConnConfig  = 240
	CmdWriteRobotConnConfig = 241
	CmdReadRobotConnStatus  = 242
	CmdWriteRobotConnStatus = 243
)

// Decoder states (internal)
const (
	stateAwaitMarker = iota // hunting for DLE
	stateAwaitStart         // DLE seen, expecting STX
	stateInFrame            // accumulating body bytes
)

// HandshakeState enumerates the pre-frame link negotiation states.
type HandshakeState int

// Handshake state values
const (
	HandshakeIdle HandshakeState = iota
	HandshakeSeenNak
	HandshakeSentSyn
	HandshakeSentAck2
	HandshakeFrameMode
)

// LinkState reflects how far a channel has come with its peer station.
type LinkState int

// Link state values
const (
	LinkDown LinkState = iota
	LinkConnecting
	LinkUp
)

// String returns the short display name for a link state.
func (l LinkState) String() string {
	switch l {
	case LinkDown:
		return "DOWN"
	case LinkConnecting:
		return "CONNECTING"
	case LinkUp:
		return "UP"
	default:
		return "UNKNOWN"
	}
}

// String returns the short display name for a handshake state.
func (h HandshakeState) String() string {
	switch h {
	case HandshakeIdle:
		return "IDLE"
	case HandshakeSeenNak:
		return "SEEN_NAK"
	case HandshakeSentSyn:
		return "SENT_SYN"
	case HandshakeSentAck2:
		return "SENT_ACK2"
	case HandshakeFrameMode:
		return "FRAME_MODE"
	default:
		return "UNKNOWN"
	}
}
