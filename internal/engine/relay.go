// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Driver mirrors the computed relay state onto hardware. Implementations
// live in internal/relaydrv; the coordinator only needs these two methods.
type Driver interface {
	Set(on bool) error
	Close() error
}

// RelayCoordinator arbitrates the single physical relay between channels.
// Any channel with an active work signal keeps the relay on; when the last
// signal drops, the relay runs on for that channel's configured after-run
// delay. A continuous-suction override wins over everything.
//
// Invariant: the after-run owner, if set, is never a channel whose work bit
// is still set.
type RelayCoordinator struct {
	log    *logrus.Logger
	driver Driver

	workMask uint8
	owner    int       // after-run owner channel, -1 when none
	deadline time.Time // valid while owner >= 0
	on       bool

	transitions uint64
}

// NewRelayCoordinator creates a coordinator with the relay off and no
// after-run pending. driver may be nil when no hardware is attached.
func NewRelayCoordinator(log *logrus.Logger, driver Driver) *RelayCoordinator {
	return &RelayCoordinator{
		log:    log,
		driver: driver,
		owner:  -1,
	}
}

// WorkOn records an active work signal on one channel and turns the relay
// on. Any pending after-run is cancelled.
func (r *RelayCoordinator) WorkOn(channel int) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	r.workMask |= 1 << channel
	r.clearAfterRun()
	r.apply(true)
}

// WorkOff clears one channel's work signal. If that was the last signal
// and no after-run is already pending, the channel becomes the after-run
// owner and the relay stays on until now+delay.
func (r *RelayCoordinator) WorkOff(channel int, now time.Time, delay time.Duration) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	was := r.workMask
	r.workMask &^= 1 << channel

	if was != 0 && r.workMask == 0 && r.owner < 0 {
		r.owner = channel
		r.deadline = now.Add(delay)
		r.log.WithFields(logrus.Fields{
			"channel":  channel,
			"deadline": r.deadline.Format("15:04:05.000"),
		}).Debug("After-run window opened")
	}
}

// DropChannel retracts a channel's work signal without starting an
// after-run, and releases the after-run if that channel owns it. Used when
// a channel goes inactive; the relay turns off at the next evaluation.
func (r *RelayCoordinator) DropChannel(channel int) {
	if channel < 0 || channel >= MaxChannels {
		return
	}
	r.workMask &^= 1 << channel
	if r.owner == channel {
		r.log.WithField("channel", channel).Debug("After-run released with its owner")
		r.clearAfterRun()
	}
}

// Evaluate recomputes the relay output. Called once per engine cycle.
func (r *RelayCoordinator) Evaluate(now time.Time, continuous bool) {
	switch {
	case continuous:
		r.clearAfterRun()
		r.apply(true)

	case r.workMask != 0:
		r.clearAfterRun()
		r.apply(true)

	case r.owner >= 0:
		if now.Before(r.deadline) {
			r.apply(true)
			return
		}
		r.clearAfterRun()
		r.apply(false)

	default:
		r.apply(false)
	}
}

// On returns the current relay output.
func (r *RelayCoordinator) On() bool {
	return r.on
}

// WorkMask returns the per-channel work bitmask.
func (r *RelayCoordinator) WorkMask() uint8 {
	return r.workMask
}

// AfterRunOwner returns the after-run owner channel, or -1.
func (r *RelayCoordinator) AfterRunOwner() int {
	return r.owner
}

// AfterRunRemaining returns how long the pending after-run still has, zero
// when none is pending.
func (r *RelayCoordinator) AfterRunRemaining(now time.Time) time.Duration {
	if r.owner < 0 {
		return 0
	}
	if rem := r.deadline.Sub(now); rem > 0 {
		return rem
	}
	return 0
}

// Transitions returns how often the relay output has changed.
func (r *RelayCoordinator) Transitions() uint64 {
	return r.transitions
}

// Close shuts the relay off and closes the driver.
func (r *RelayCoordinator) Close() error {
	r.clearAfterRun()
	r.workMask = 0
	r.apply(false)
	if r.driver == nil {
		return nil
	}
	return r.driver.Close()
}

func (r *RelayCoordinator) clearAfterRun() {
	r.owner = -1
	r.deadline = time.Time{}
}

// apply drives the output; a no-op unless the state actually changes.
func (r *RelayCoordinator) apply(on bool) {
	if on == r.on {
		return
	}
	r.on = on
	r.transitions++

	r.log.WithFields(logrus.Fields{
		"on":   on,
		"mask": r.workMask,
	}).Info("Relay output changed")

	if r.driver == nil {
		return
	}
	if err := r.driver.Set(on); err != nil {
		r.log.WithError(err).Warn("Relay driver write failed")
	}
}
