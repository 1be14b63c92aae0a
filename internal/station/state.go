// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package station models the emulated fume extractor: suction and flow
// settings, intake activation, pedal, filter wear, and the error mask.
// Every setter clamps to the documented range, so wire values and console
// input can be stored without a validation round first.
package station

import "strings"

// Value ranges
const (
	MaxSuctionLevel = 3    // suction level 0-3
	MaxFlow         = 1000 // flow, speed and select-flow ceiling
	MaxPedalMode    = 2    // pedal mode 0-2
	MaxDelaySeconds = 60   // intake after-run delay ceiling
	MaxPin          = 9999 // four decimal digits
	MaxNameLen      = 32   // station name byte limit
	MaxFilter       = 1000 // filter status / saturation ceiling
)

// Intake indices
const (
	IntakeWork  = 0
	IntakeStand = 1
	NumIntakes  = 2
)

// Intake is one suction inlet: active or not, plus the after-run delay
// applied when its work signal drops.
type Intake struct {
	Active       bool
	DelaySeconds uint8
}

// DelayMs returns the after-run delay in milliseconds, the unit the
// protocol reports.
func (i Intake) DelayMs() uint16 {
	return uint16(i.DelaySeconds) * 1000
}

// Settings is the configurable portion of the device state. It is what the
// debounced persistence blob carries.
type Settings struct {
	SuctionLevel uint8
	SelectFlow   uint16
	Intakes      [NumIntakes]Intake

	PedalActive bool
	PedalMode   uint8

	ContinuousSuction bool
	USBConnect        bool
	Beep              bool

	Locked     bool
	Pin        uint16
	PinEnabled bool

	Name string

	FilterStatus     uint16 // remaining filter life
	FilterSaturation uint16
}

// DefaultSettings returns the factory defaults.
func DefaultSettings() Settings {
	s := Settings{
		SuctionLevel: 2,
		SelectFlow:   700,
		PedalMode:    0,
		Beep:         true,
		FilterStatus: MaxFilter,
		Name:         "FAE-EMU",
	}
	for i := range s.Intakes {
		s.Intakes[i] = Intake{Active: true, DelaySeconds: 10}
	}
	return s
}

// State is the full device state: settings plus runtime-only fields. One
// instance is owned by the engine and passed explicitly to anything that
// needs it.
type State struct {
	Settings

	PedalConnected bool
	ErrorMask      uint16
}

// NewState creates a device state at factory defaults.
func NewState() *State {
	return &State{
		Settings:       DefaultSettings(),
		PedalConnected: true,
	}
}

// Reset restores factory defaults. Runtime fields (pedal presence, error
// mask) are left alone; adopted protocol addresses live elsewhere.
func (s *State) Reset() {
	s.Settings = DefaultSettings()
}

// ---- clamped setters ----

// SetSuctionLevel stores a suction level, clamped to 0-3.
func (s *State) SetSuctionLevel(v int) {
	s.SuctionLevel = uint8(clampInt(v, 0, MaxSuctionLevel))
}

// SetSelectFlow stores a selected flow, clamped to 0-1000.
func (s *State) SetSelectFlow(v int) {
	s.SelectFlow = uint16(clampInt(v, 0, MaxFlow))
}

// Flow returns the emulated measured flow: proportional to the suction
// level while the turbine runs, zero otherwise.
func (s *State) Flow(running bool) uint16 {
	if !running {
		return 0
	}
	return uint16(int(s.SuctionLevel) * MaxFlow / MaxSuctionLevel)
}

// Speed returns the emulated motor speed on the same scale as Flow.
func (s *State) Speed(running bool) uint16 {
	return s.Flow(running)
}

// SetIntakeActive flags one intake active or inactive. Out-of-range intake
// indices are ignored.
func (s *State) SetIntakeActive(intake int, on bool) {
	if intake < 0 || intake >= NumIntakes {
		return
	}
	s.Intakes[intake].Active = on
}

// SetIntakeDelay stores one intake's after-run delay, clamped to 0-60 s.
func (s *State) SetIntakeDelay(intake int, seconds int) {
	if intake < 0 || intake >= NumIntakes {
		return
	}
	s.Intakes[intake].DelaySeconds = uint8(clampInt(seconds, 0, MaxDelaySeconds))
}

// IntakeDelayMs returns one intake's after-run delay in milliseconds, or 0
// for an out-of-range index.
func (s *State) IntakeDelayMs(intake int) uint16 {
	if intake < 0 || intake >= NumIntakes {
		return 0
	}
	return s.Intakes[intake].DelayMs()
}

// SetPedalActive stores the pedal activation flag.
func (s *State) SetPedalActive(on bool) {
	s.PedalActive = on
}

// SetPedalMode stores the pedal mode, clamped to 0-2.
func (s *State) SetPedalMode(v int) {
	s.PedalMode = uint8(clampInt(v, 0, MaxPedalMode))
}

// SetContinuousSuction stores the continuous-suction override flag.
func (s *State) SetContinuousSuction(on bool) {
	s.ContinuousSuction = on
}

// SetUSBConnect stores the USB-connect flag.
func (s *State) SetUSBConnect(on bool) {
	s.USBConnect = on
}

// SetBeep stores the beeper flag.
func (s *State) SetBeep(on bool) {
	s.Beep = on
}

// SetLocked stores the station-locked flag.
func (s *State) SetLocked(on bool) {
	s.Locked = on
}

// SetPin stores the station PIN, clamped to 0-9999.
func (s *State) SetPin(v int) {
	s.Pin = uint16(clampInt(v, 0, MaxPin))
}

// SetPinEnabled stores the PIN-enabled flag.
func (s *State) SetPinEnabled(on bool) {
	s.PinEnabled = on
}

// SetName stores the station name: trimmed at the first NUL, truncated to
// 32 bytes.
func (s *State) SetName(raw []byte) {
	name := string(raw)
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	s.Name = name
}

// SetFilterStatus stores the remaining filter life, clamped to 0-1000.
func (s *State) SetFilterStatus(v int) {
	s.FilterStatus = uint16(clampInt(v, 0, MaxFilter))
}

// SetFilterSaturation stores the filter saturation, clamped to 0-1000.
func (s *State) SetFilterSaturation(v int) {
	s.FilterSaturation = uint16(clampInt(v, 0, MaxFilter))
}

// ResetFilter restores a fresh filter: full remaining life, no saturation.
func (s *State) ResetFilter() {
	s.FilterStatus = MaxFilter
	s.FilterSaturation = 0
}

// ---- error mask ----

// RaiseError sets bits in the 16-bit error mask.
func (s *State) RaiseError(bits uint16) {
	s.ErrorMask |= bits
}

// ClearError clears bits in the error mask.
func (s *State) ClearError(bits uint16) {
	s.ErrorMask &^= bits
}

// SetErrorMask replaces the error mask wholesale.
func (s *State) SetErrorMask(mask uint16) {
	s.ErrorMask = mask
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
