// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

// ackPayload is the single-byte acknowledge body used by every ack reply.
var ackPayload = []byte{p02.ACK}

// writeHandler applies one write control code. It reports whether to ack
// and whether the write dirtied the persisted settings.
type writeHandler func(ch *Channel, data []byte, now time.Time) (ack, dirty bool)

// readHandler builds one read reply payload, or reports the request as
// unusable (short data) so it is dropped silently.
type readHandler func(ch *Channel, data []byte) ([]byte, bool)

// dispatchFrame routes one decoded frame: handshake traffic by frame ID,
// everything else through the write and read registries. Replies go out
// within this call.
func (e *Engine) dispatchFrame(ch *Channel, f *p02.Frame, now time.Time) {
	if f.FrameID == e.handshakeFID {
		e.handleHandshakeFrame(ch, f, now)
		return
	}

	if !e.forUs(ch, f) {
		ch.stats.IgnoredFrames++
		return
	}

	// Stations poll intake activation as a keepalive.
	if f.Control == p02.CmdReadIntakeActivation || f.Control == p02.CmdWriteIntakeActivation {
		ch.lastIntake = now
	}

	if h, ok := e.writeHandlers[f.Control]; ok {
		ack, dirty := h(ch, f.Data, now)
		if ack {
			e.reply(ch, f, f.Control, ackPayload, now)
		}
		if dirty {
			e.markDirty(now)
		}
		if ch.pendingReset {
			ch.pendingReset = false
			e.resetChannel(ch, "framed reset request")
		}
		return
	}

	if h, ok := e.readHandlers[f.Control]; ok {
		if payload, usable := h(ch, f.Data); usable {
			e.reply(ch, f, f.Control, payload, now)
			return
		}
	}

	ch.stats.IgnoredFrames++
}

// handleHandshakeFrame implements address adoption. The first handshake
// frame with a concrete destination locks that destination in as our own
// address; afterwards only frames for that address (or broadcast) are
// acknowledged.
func (e *Engine) handleHandshakeFrame(ch *Channel, f *p02.Frame, now time.Time) {
	switch {
	case !ch.locked && !f.IsBroadcast():
		ch.ownAddr = f.Dest
		ch.locked = true
		ch.peerAddr = f.Source
		e.log.WithFields(logrus.Fields{
			"channel": ch.index,
			"address": ch.ownAddr,
			"station": f.Source,
		}).Info("Adopted protocol address")

		if err := e.store.SaveAddress(ch.index, ch.ownAddr); err != nil {
			e.log.WithError(err).WithField("channel", ch.index).Warn("Failed to persist address")
		}

	case ch.locked && (f.IsBroadcast() || f.Dest == ch.ownAddr):
		ch.peerAddr = f.Source

	default:
		ch.stats.IgnoredFrames++
		return
	}

	e.reply(ch, f, p02.CmdHandshake, ackPayload, now)
	if ch.link == p02.LinkDown {
		ch.link = p02.LinkConnecting
	}
}

// forUs reports whether an application frame is addressed to this channel.
func (e *Engine) forUs(ch *Channel, f *p02.Frame) bool {
	if f.IsBroadcast() {
		return true
	}
	return ch.locked && f.Dest == ch.ownAddr
}

// reply encodes and transmits a reply within the dispatch call.
func (e *Engine) reply(ch *Channel, req *p02.Frame, control byte, payload []byte, now time.Time) {
	wire, err := p02.EncodeFrame(req.Reply(ch.ownAddr, control, payload))
	if err != nil {
		e.log.WithError(err).WithField("channel", ch.index).Error("Reply encode failed")
		return
	}
	if err := ch.send(wire); err != nil {
		e.log.WithError(err).WithField("channel", ch.index).Warn("Reply write failed")
		return
	}
	ch.stats.RepliesSent++
	ch.lastReply = now
}

// applyWork drives the relay coordinator from a work-intake signal, the
// same path for control code 96 and the console `work` command. A
// deactivated work intake swallows the signal.
func (e *Engine) applyWork(channel int, on bool, now time.Time) {
	if !e.state.Intakes[station.IntakeWork].Active {
		e.log.WithFields(logrus.Fields{
			"channel": channel,
			"on":      on,
		}).Debug("Work signal ignored, work intake deactivated")
		return
	}
	if on {
		e.relay.WorkOn(channel)
		return
	}
	delay := time.Duration(e.state.IntakeDelayMs(station.IntakeWork)) * time.Millisecond
	e.relay.WorkOff(channel, now, delay)
}

// forceUp marks the link fully negotiated. Identity and firmware reads are
// the station's last setup step, so they promote the link state.
func (e *Engine) forceUp(ch *Channel) {
	if ch.link != p02.LinkUp {
		e.log.WithField("channel", ch.index).Info("Link up")
		ch.link = p02.LinkUp
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func appendLE16(p []byte, v uint16) []byte {
	return append(p, byte(v), byte(v>>8))
}

// registerHandlers builds the write and read registries. Handlers capture
// the engine; they run only inside the engine cycle.
func (e *Engine) registerHandlers() {
	e.writeHandlers = map[byte]writeHandler{
		p02.CmdWriteSuctionLevel: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.state.SetSuctionLevel(int(data[1]))
			return true, true
		},

		p02.CmdWriteSelectFlow: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 3 {
				return false, false
			}
			e.state.SetSelectFlow(int(uint16(data[1]) | uint16(data[2])<<8))
			return true, true
		},

		p02.CmdWriteStandIntakes: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.state.SetIntakeActive(station.IntakeStand, data[1] != 0)
			return true, true
		},

		p02.CmdWriteIntakeActivation: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 3 {
				return false, false
			}
			e.state.SetIntakeActive(int(data[1]), data[2] != 0)
			return true, true
		},

		p02.CmdWriteSuctionDelay: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 4 {
				return false, false
			}
			e.state.SetIntakeDelay(int(data[1]), int(uint16(data[2])|uint16(data[3])<<8))
			return true, true
		},

		p02.CmdWriteWorkIntakes: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.applyWork(ch.index, data[1] != 0, now)
			return true, false
		},

		p02.CmdWritePedalActivation: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.state.SetPedalActive(data[1] != 0)
			return true, true
		},

		p02.CmdWritePedalMode: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.state.SetPedalMode(int(data[1]))
			return true, true
		},

		p02.CmdWriteDeviceID: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) == 0 {
				return false, false
			}
			ch.identity = append([]byte(nil), data...)
			if err := e.store.SaveIdentity(ch.index, data); err != nil {
				e.log.WithError(err).WithField("channel", ch.index).Warn("Failed to persist identity")
			}
			return true, false
		},

		p02.CmdWriteDeviceName: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) == 0 {
				return false, false
			}
			e.state.SetName(data)
			return true, true
		},

		p02.CmdWritePin: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 2 {
				return false, false
			}
			e.state.SetPin(int(uint16(data[0]) | uint16(data[1])<<8))
			return true, true
		},

		p02.CmdWriteStationLocked: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 1 {
				return false, false
			}
			e.state.SetLocked(data[0] != 0)
			return true, true
		},

		p02.CmdWriteBeep: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 1 {
				return false, false
			}
			e.state.SetBeep(data[0] != 0)
			return true, true
		},

		p02.CmdWriteContinuousSuction: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 1 {
				return false, false
			}
			e.state.SetContinuousSuction(data[0] != 0)
			return true, true
		},

		p02.CmdWritePinEnabled: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 1 {
				return false, false
			}
			e.state.SetPinEnabled(data[0] != 0)
			return true, true
		},

		p02.CmdWriteUSBConnect: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			if len(data) < 1 {
				return false, false
			}
			e.state.SetUSBConnect(data[0] != 0)
			return true, true
		},

		p02.CmdResetFilter: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			e.state.ResetFilter()
			return true, true
		},

		p02.CmdResetStation: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			e.log.WithField("channel", ch.index).Info("Station reset to factory defaults")
			e.state.Reset()
			return true, true
		},

		p02.CmdReset: func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			// Ack first, then tear the link down once the reply is out.
			ch.pendingReset = true
			return true, false
		},
	}

	// Firmware-update sequencing codes are acknowledged and otherwise
	// ignored; there is no flash to program.
	for code := byte(p02.CmdClearMemFlash); code <= p02.CmdForceUpdate; code++ {
		e.writeHandlers[code] = func(ch *Channel, data []byte, now time.Time) (bool, bool) {
			return true, false
		}
	}

	e.readHandlers = map[byte]readHandler{
		p02.CmdReadSuctionLevel: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return []byte{data[0], e.state.SuctionLevel}, true
		},

		p02.CmdReadFlow: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return appendLE16([]byte{data[0]}, e.state.Flow(e.relay.On())), true
		},

		p02.CmdReadSpeed: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return appendLE16([]byte{data[0]}, e.state.Speed(e.relay.On())), true
		},

		p02.CmdReadSelectFlow: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return appendLE16([]byte{data[0]}, e.state.SelectFlow), true
		},

		p02.CmdReadStandIntakes: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return []byte{data[0], boolByte(e.state.Intakes[station.IntakeStand].Active)}, true
		},

		p02.CmdReadIntakeActivation: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 2 {
				return nil, false
			}
			active := false
			if i := int(data[1]); i >= 0 && i < station.NumIntakes {
				active = e.state.Intakes[i].Active
			}
			return []byte{data[0], data[1], boolByte(active)}, true
		},

		p02.CmdReadSuctionDelay: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 2 {
				return nil, false
			}
			var secs uint16
			if i := int(data[1]); i >= 0 && i < station.NumIntakes {
				secs = uint16(e.state.Intakes[i].DelaySeconds)
			}
			return appendLE16([]byte{data[0], data[1]}, secs), true
		},

		p02.CmdReadDelayTime: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 2 {
				return nil, false
			}
			return appendLE16([]byte{data[0], data[1]}, e.state.IntakeDelayMs(int(data[1]))), true
		},

		p02.CmdReadPedalActivation: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return []byte{data[0], boolByte(e.state.PedalActive)}, true
		},

		p02.CmdReadPedalMode: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return []byte{data[0], e.state.PedalMode}, true
		},

		p02.CmdReadConnectedPedal: func(ch *Channel, data []byte) ([]byte, bool) {
			if len(data) < 1 {
				return nil, false
			}
			return []byte{data[0], boolByte(e.state.PedalConnected)}, true
		},

		p02.CmdReadFilterStatus: func(ch *Channel, data []byte) ([]byte, bool) {
			return appendLE16(nil, e.state.FilterStatus), true
		},

		p02.CmdReadFilterSat: func(ch *Channel, data []byte) ([]byte, bool) {
			return appendLE16(nil, e.state.FilterSaturation), true
		},

		p02.CmdReadPin: func(ch *Channel, data []byte) ([]byte, bool) {
			return appendLE16(nil, e.state.Pin), true
		},

		p02.CmdReadStationLocked: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte{boolByte(e.state.Locked)}, true
		},

		p02.CmdReadBeep: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte{boolByte(e.state.Beep)}, true
		},

		p02.CmdReadContinuousSuction: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte{boolByte(e.state.ContinuousSuction)}, true
		},

		p02.CmdReadStationError: func(ch *Channel, data []byte) ([]byte, bool) {
			return appendLE16(nil, e.state.ErrorMask), true
		},

		p02.CmdReadDeviceName: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte(e.state.Name), true
		},

		p02.CmdReadPinEnabled: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte{boolByte(e.state.PinEnabled)}, true
		},

		p02.CmdReadUSBConnect: func(ch *Channel, data []byte) ([]byte, bool) {
			return []byte{boolByte(e.state.USBConnect)}, true
		},

		p02.CmdFirmware: func(ch *Channel, data []byte) ([]byte, bool) {
			e.forceUp(ch)
			return []byte(e.firmware), true
		},

		p02.CmdDeviceIDOriginal: func(ch *Channel, data []byte) ([]byte, bool) {
			e.forceUp(ch)
			return []byte(e.factoryID), true
		},

		p02.CmdDiscover: func(ch *Channel, data []byte) ([]byte, bool) {
			e.forceUp(ch)
			if len(ch.identity) > 0 {
				return ch.identity, true
			}
			return []byte(e.factoryID), true
		},

		p02.CmdReadDeviceID: func(ch *Channel, data []byte) ([]byte, bool) {
			e.forceUp(ch)
			if len(ch.identity) > 0 {
				return ch.identity, true
			}
			return []byte(e.factoryID), true
		},
	}
}
