// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
)

// Op is one queued operator command. Ops are applied at the top of the
// engine cycle, so they land on the same code paths as protocol writes:
// same clamping, same relay coordination, same debounced persistence.
type Op interface {
	run(e *Engine, now time.Time)
}

func (e *Engine) drainOps(now time.Time) {
	for {
		select {
		case op := <-e.ops:
			op.run(e, now)
		default:
			return
		}
	}
}

// ---- set ----

// stateOp mutates the device state, optionally dirtying the settings blob.
type stateOp struct {
	name  string
	dirty bool
	apply func(e *Engine)
}

func (o stateOp) run(e *Engine, now time.Time) {
	o.apply(e)
	if o.dirty {
		e.markDirty(now)
	}
	e.log.WithField("param", o.name).Info("Console set applied")
}

// SetParam builds the op for `set <param> <value>`. The names match what
// Snapshot.Param renders for `get`.
func SetParam(name, value string) (Op, error) {
	dirty := true
	var apply func(e *Engine)

	switch name {
	case "suction":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("suction wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetSuctionLevel(v) }

	case "select_flow":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("select_flow wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetSelectFlow(v) }

	case "delay_work", "delay_stand":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s wants seconds: %w", name, err)
		}
		intake := station.IntakeWork
		if name == "delay_stand" {
			intake = station.IntakeStand
		}
		apply = func(e *Engine) { e.state.SetIntakeDelay(intake, v) }

	case "work_active", "stand_active":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		intake := station.IntakeWork
		if name == "stand_active" {
			intake = station.IntakeStand
		}
		apply = func(e *Engine) { e.state.SetIntakeActive(intake, on) }

	case "pedal":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetPedalActive(on) }

	case "pedal_mode":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("pedal_mode wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetPedalMode(v) }

	case "pedal_connected":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		dirty = false // hardware presence, not configuration
		apply = func(e *Engine) { e.state.PedalConnected = on }

	case "continuous":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetContinuousSuction(on) }

	case "usb":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetUSBConnect(on) }

	case "beep":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetBeep(on) }

	case "lock":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetLocked(on) }

	case "pin":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("pin wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetPin(v) }

	case "pin_enabled":
		on, err := parseOnOff(value)
		if err != nil {
			return nil, err
		}
		apply = func(e *Engine) { e.state.SetPinEnabled(on) }

	case "name":
		apply = func(e *Engine) { e.state.SetName([]byte(value)) }

	case "filter_status":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("filter_status wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetFilterStatus(v) }

	case "filter_sat":
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("filter_sat wants a number: %w", err)
		}
		apply = func(e *Engine) { e.state.SetFilterSaturation(v) }

	default:
		return nil, fmt.Errorf("unknown parameter %q", name)
	}

	return stateOp{name: name, dirty: dirty, apply: apply}, nil
}

func parseOnOff(value string) (bool, error) {
	switch value {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("want on/off, got %q", value)
}

// ---- work ----

type workOp struct {
	channel int
	on      bool
}

func (o workOp) run(e *Engine, now time.Time) {
	e.applyWork(o.channel, o.on, now)
}

// Work builds the op for `work <ch> on|off`, equivalent to the
// work-intake write arriving on that channel.
func Work(channel int, on bool) Op {
	return workOp{channel: channel, on: on}
}

// ---- error ----

type errorOp struct {
	mask uint16
}

func (o errorOp) run(e *Engine, now time.Time) {
	e.state.SetErrorMask(o.mask)
	e.log.WithField("mask", fmt.Sprintf("0x%04X", o.mask)).Info("Error mask forced")
}

// ForceError builds the op for `error <hex-mask>`.
func ForceError(mask uint16) Op {
	return errorOp{mask: mask}
}

// ---- channels ----

type channelsOp struct {
	count int
}

func (o channelsOp) run(e *Engine, now time.Time) {
	if o.count > len(e.channels) {
		e.log.WithField("configured", len(e.channels)).Warn("Fewer transports configured than requested")
	}
	for i, ch := range e.channels {
		want := i < o.count
		switch {
		case ch.active && !want:
			ch.active = false
			e.resetChannel(ch, "channel disabled")
		case !ch.active && want:
			ch.active = true
			e.log.WithField("channel", i).Info("Channel enabled")
		}
	}
}

// SetChannelCount builds the op for `channels <1|2>`. Disabling a channel
// resets it like an inactivity timeout.
func SetChannelCount(count int) Op {
	return channelsOp{count: count}
}

// ---- wipe ----

type wipeOp struct{}

func (o wipeOp) run(e *Engine, now time.Time) {
	if err := e.store.Wipe(); err != nil {
		e.log.WithError(err).Warn("Failed to wipe persisted state")
		return
	}
	e.log.Info("Persisted state wiped")
}

// WipePersisted builds the op for `wipe`. In-memory state is untouched;
// only the file goes.
func WipePersisted() Op {
	return wipeOp{}
}

// ---- quit ----

type quitOp struct{}

func (o quitOp) run(e *Engine, now time.Time) {
	e.stopped.Store(true)
}

// Quit builds the op that stops the engine loop after the current cycle.
func Quit() Op {
	return quitOp{}
}
