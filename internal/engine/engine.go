// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package engine runs the emulator core: one goroutine owns the device
// state, the relay coordinator and every channel's protocol machines, and
// advances them in fixed cycles. Transports push bytes in through
// Channel.QueueBytes, the operator console pushes typed operations in
// through Submit, and everyone else reads the published snapshot.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/config"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/persist"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

// Engine owns all mutable emulator state. Methods other than QueueBytes,
// Submit, Snapshot and Stopped must only run on the engine goroutine.
type Engine struct {
	log   *logrus.Logger
	state *station.State
	relay *RelayCoordinator
	store *persist.Store

	handshakeFID byte
	appFID       byte
	firmware     string
	factoryID    string
	defaultName  string

	poll         time.Duration
	linkTimeout  time.Duration
	saveDebounce time.Duration

	channels []*Channel
	ops      chan Op
	now      func() time.Time

	dirty   bool
	dirtyAt time.Time
	stopped atomic.Bool

	snapshot      atomic.Pointer[Snapshot]
	writeHandlers map[byte]writeHandler
	readHandlers  map[byte]readHandler
}

// New assembles an engine from its collaborators. Channels are added
// afterwards with AddChannel, one per configured transport.
func New(log *logrus.Logger, cfg *config.Config, st *station.State, relay *RelayCoordinator, store *persist.Store) *Engine {
	e := &Engine{
		log:          log,
		state:        st,
		relay:        relay,
		store:        store,
		handshakeFID: cfg.Protocol.HandshakeFID,
		appFID:       cfg.Protocol.AppFID,
		firmware:     cfg.Identity.Firmware,
		factoryID:    cfg.Identity.FactoryID,
		defaultName:  cfg.Identity.Name,
		poll:         cfg.Timing.PollInterval(),
		linkTimeout:  cfg.Timing.LinkTimeout(),
		saveDebounce: cfg.Timing.SaveDebounce(),
		ops:          make(chan Op, 64),
		now:          time.Now,
	}
	e.registerHandlers()
	return e
}

// AddChannel registers one transport as the next channel.
func (e *Engine) AddChannel(w io.Writer) (*Channel, error) {
	if len(e.channels) >= MaxChannels {
		return nil, fmt.Errorf("at most %d channels supported", MaxChannels)
	}
	ch := newChannel(len(e.channels), w)
	e.channels = append(e.channels, ch)
	return ch, nil
}

// Channels returns the registered channels.
func (e *Engine) Channels() []*Channel {
	return e.channels
}

// RestorePersisted loads adopted addresses, identities and the settings
// blob from the store. Restored addresses stay unlocked so the next
// handshake can still re-adopt. Called once, before the first cycle.
func (e *Engine) RestorePersisted() {
	for _, ch := range e.channels {
		addr, ok, err := e.store.LoadAddress(ch.index)
		if err != nil {
			e.log.WithError(err).WithField("channel", ch.index).Warn("Failed to load persisted address")
		} else if ok {
			ch.ownAddr = addr
			e.log.WithFields(logrus.Fields{
				"channel": ch.index,
				"address": addr,
			}).Debug("Restored persisted address")
		}

		id, err := e.store.LoadIdentity(ch.index)
		if err != nil {
			e.log.WithError(err).WithField("channel", ch.index).Warn("Failed to load persisted identity")
		} else if len(id) > 0 {
			ch.identity = id
		}
	}

	set, ok, err := e.store.LoadSettings()
	switch {
	case err != nil:
		e.log.WithError(err).Warn("Failed to load persisted settings")
	case ok:
		e.state.Settings = set
		e.log.Debug("Restored persisted settings")
	default:
		e.state.SetName([]byte(e.defaultName))
	}
}

// Submit queues an operator command for the next cycle. Never blocks; a
// full queue drops the command.
func (e *Engine) Submit(op Op) {
	select {
	case e.ops <- op:
	default:
		e.log.Warn("Operator command dropped, queue full")
	}
}

// Stopped reports whether a quit command has been applied. Safe to call
// from any goroutine; the TUI polls it on every tick.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// Run cycles the engine until the context ends or a quit command arrives.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.RunOnce(e.now())
			if e.stopped.Load() {
				e.shutdown()
				return nil
			}
		}
	}
}

// RunOnce advances the engine by one cycle.
func (e *Engine) RunOnce(now time.Time) {
	e.drainOps(now)

	for _, ch := range e.channels {
		if !ch.active {
			continue
		}
		for _, b := range ch.drainRx() {
			e.feedByte(ch, b, now)
		}
	}

	e.relay.Evaluate(now, e.state.ContinuousSuction)
	e.flushSettings(now, false)
	e.checkInactivity(now)
	e.publishSnapshot(now)
}

// feedByte pushes one received byte through the handshake machine and,
// once the channel talks frames, through the decoder and dispatcher.
func (e *Engine) feedByte(ch *Channel, b byte, now time.Time) {
	ch.lastByte = now

	if !ch.hs.InFrameMode() {
		ev := ch.hs.Feed(b, now)
		if len(ev.Send) > 0 {
			if ev.Send[0] == p02.SYN {
				ch.stats.SynsSent++
			}
			if err := ch.send(ev.Send); err != nil {
				e.log.WithError(err).WithField("channel", ch.index).Warn("Handshake write failed")
			}
		}
		if ev.Connecting {
			ch.stats.Handshakes++
			if ch.link == p02.LinkDown {
				ch.link = p02.LinkConnecting
			}
			e.log.WithField("channel", ch.index).Info("Handshake complete, entering frame mode")
		}
		if ev.FrameMode && b == p02.DLE {
			// The byte that switched us to frame mode is also the start
			// of the first frame; arm the decoder with it.
			ch.dec.DecodeByte(b)
		}
		return
	}

	frame, err := ch.dec.DecodeByte(b)
	ch.stats.Update(frame, err)
	if err != nil {
		e.log.WithError(err).WithField("channel", ch.index).Debug("Frame decode error")
		return
	}
	if frame != nil {
		if frame.FrameID != e.handshakeFID && frame.FrameID != e.appFID {
			e.log.WithFields(logrus.Fields{
				"channel": ch.index,
				"fid":     frame.FrameID,
			}).Debug("Frame with unexpected frame ID")
		}
		e.dispatchFrame(ch, frame, now)
	}
}

// markDirty notes a configuration-affecting write for the debounced save.
func (e *Engine) markDirty(now time.Time) {
	e.dirty = true
	e.dirtyAt = now
}

// flushSettings persists the settings blob once the debounce window has
// passed. A failed save is retried one debounce period later.
func (e *Engine) flushSettings(now time.Time, force bool) {
	if !e.dirty {
		return
	}
	if !force && now.Sub(e.dirtyAt) < e.saveDebounce {
		return
	}
	if err := e.store.SaveSettings(e.state.Settings); err != nil {
		e.log.WithError(err).Warn("Failed to persist settings")
		e.dirtyAt = now
		return
	}
	e.dirty = false
	e.log.Debug("Settings persisted")
}

// checkInactivity resets channels whose station has gone quiet.
func (e *Engine) checkInactivity(now time.Time) {
	for _, ch := range e.channels {
		if !ch.active || ch.lastByte.IsZero() {
			continue
		}
		if now.Sub(ch.lastByte) >= e.linkTimeout {
			e.resetChannel(ch, "link timeout")
		}
	}
}

// resetChannel tears one channel's link down: handshake to Idle, decoder
// reset, link down, address unlocked, work signal retracted. The adopted
// address value survives for display; only the lock is released.
func (e *Engine) resetChannel(ch *Channel, reason string) {
	e.log.WithFields(logrus.Fields{
		"channel": ch.index,
		"reason":  reason,
	}).Info("Channel reset")

	ch.hs.Reset()
	ch.dec.Reset()
	ch.link = p02.LinkDown
	ch.locked = false
	ch.pendingReset = false
	ch.lastByte = time.Time{}
	e.relay.DropChannel(ch.index)
}

// shutdown flushes pending state and releases the relay.
func (e *Engine) shutdown() {
	e.flushSettings(e.now(), true)
	if err := e.relay.Close(); err != nil {
		e.log.WithError(err).Warn("Relay driver close failed")
	}
}
