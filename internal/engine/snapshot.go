// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

// ChannelStatus is one channel's slice of a snapshot.
type ChannelStatus struct {
	Index         int
	Active        bool
	Link          p02.LinkState
	OwnAddress    byte
	AddressLocked bool
	PeerAddress   byte
	Identity      string

	IdleFor     time.Duration // since the last received byte, 0 when never
	FramesTotal uint64
	FramesValid uint64
	Errors      uint64
	RepliesSent uint64
	SynsSent    uint64
	Handshakes  uint64
	WriteErrors uint64
}

// Snapshot is an immutable view of the engine published once per cycle.
// Metrics, telemetry, the TUI and the console all read it; nobody writes
// through it.
type Snapshot struct {
	Taken time.Time

	Settings       station.Settings
	PedalConnected bool
	ErrorMask      uint16
	Flow           uint16
	Speed          uint16

	RelayOn           bool
	WorkMask          uint8
	AfterRunOwner     int // -1 when none
	AfterRunRemaining time.Duration
	RelayTransitions  uint64

	SettingsDirty bool

	Channels []ChannelStatus
}

func (e *Engine) publishSnapshot(now time.Time) {
	running := e.relay.On()
	snap := &Snapshot{
		Taken:             now,
		Settings:          e.state.Settings,
		PedalConnected:    e.state.PedalConnected,
		ErrorMask:         e.state.ErrorMask,
		Flow:              e.state.Flow(running),
		Speed:             e.state.Speed(running),
		RelayOn:           running,
		WorkMask:          e.relay.WorkMask(),
		AfterRunOwner:     e.relay.AfterRunOwner(),
		AfterRunRemaining: e.relay.AfterRunRemaining(now),
		RelayTransitions:  e.relay.Transitions(),
		SettingsDirty:     e.dirty,
		Channels:          make([]ChannelStatus, 0, len(e.channels)),
	}

	for _, ch := range e.channels {
		cs := ChannelStatus{
			Index:         ch.index,
			Active:        ch.active,
			Link:          ch.link,
			OwnAddress:    ch.ownAddr,
			AddressLocked: ch.locked,
			PeerAddress:   ch.peerAddr,
			Identity:      string(ch.identity),
			FramesTotal:   ch.stats.FramesTotal,
			FramesValid:   ch.stats.FramesValid,
			Errors:        ch.stats.ErrorTotal(),
			RepliesSent:   ch.stats.RepliesSent,
			SynsSent:      ch.stats.SynsSent,
			Handshakes:    ch.stats.Handshakes,
			WriteErrors:   ch.stats.WriteErrors,
		}
		if !ch.lastByte.IsZero() {
			cs.IdleFor = now.Sub(ch.lastByte)
		}
		snap.Channels = append(snap.Channels, cs)
	}

	e.snapshot.Store(snap)
}

// Snapshot returns the most recently published snapshot, or nil before the
// first cycle.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Param renders one named device parameter for the operator console.
func (s *Snapshot) Param(name string) (string, bool) {
	set := s.Settings
	switch name {
	case "suction":
		return strconv.Itoa(int(set.SuctionLevel)), true
	case "select_flow":
		return strconv.Itoa(int(set.SelectFlow)), true
	case "flow":
		return strconv.Itoa(int(s.Flow)), true
	case "speed":
		return strconv.Itoa(int(s.Speed)), true
	case "work_active":
		return boolParam(set.Intakes[station.IntakeWork].Active), true
	case "stand_active":
		return boolParam(set.Intakes[station.IntakeStand].Active), true
	case "delay_work":
		return strconv.Itoa(int(set.Intakes[station.IntakeWork].DelaySeconds)), true
	case "delay_stand":
		return strconv.Itoa(int(set.Intakes[station.IntakeStand].DelaySeconds)), true
	case "pedal":
		return boolParam(set.PedalActive), true
	case "pedal_mode":
		return strconv.Itoa(int(set.PedalMode)), true
	case "pedal_connected":
		return boolParam(s.PedalConnected), true
	case "continuous":
		return boolParam(set.ContinuousSuction), true
	case "usb":
		return boolParam(set.USBConnect), true
	case "beep":
		return boolParam(set.Beep), true
	case "lock":
		return boolParam(set.Locked), true
	case "pin":
		return fmt.Sprintf("%04d", set.Pin), true
	case "pin_enabled":
		return boolParam(set.PinEnabled), true
	case "name":
		return set.Name, true
	case "filter_status":
		return strconv.Itoa(int(set.FilterStatus)), true
	case "filter_sat":
		return strconv.Itoa(int(set.FilterSaturation)), true
	case "error":
		return fmt.Sprintf("0x%04X", s.ErrorMask), true
	}
	return "", false
}

func boolParam(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
