// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package persist stores the small pieces of state that must survive a
// restart: per-channel adopted addresses and identities, and the device
// settings blob. Everything lives in one CBOR file with integer keys.
//
// Loads degrade: a missing or unreadable file reads as "nothing stored".
// Saves are read-modify-write through a temp file and rename, so a torn
// write never eats the previous state.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
)

// MaxChannels bounds the per-channel slots in the state file.
const MaxChannels = 2

// Store reads and writes the state file at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given path. No IO happens until the
// first load or save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// record is the on-disk root structure.
type record struct {
	Version  int                        `cbor:"0,keyasint"`
	Channels [MaxChannels]channelRecord `cbor:"1,keyasint"`
	Settings *settingsRecord            `cbor:"2,keyasint,omitempty"`
}

type channelRecord struct {
	HasAddress bool   `cbor:"0,keyasint"`
	Address    byte   `cbor:"1,keyasint"`
	Identity   []byte `cbor:"2,keyasint,omitempty"`
}

type settingsRecord struct {
	SuctionLevel uint8  `cbor:"0,keyasint"`
	SelectFlow   uint16 `cbor:"1,keyasint"`
	WorkActive   bool   `cbor:"2,keyasint"`
	WorkDelay    uint8  `cbor:"3,keyasint"`
	StandActive  bool   `cbor:"4,keyasint"`
	StandDelay   uint8  `cbor:"5,keyasint"`
	PedalActive  bool   `cbor:"6,keyasint"`
	PedalMode    uint8  `cbor:"7,keyasint"`
	Continuous   bool   `cbor:"8,keyasint"`
	USBConnect   bool   `cbor:"9,keyasint"`
	Beep         bool   `cbor:"10,keyasint"`
	Locked       bool   `cbor:"11,keyasint"`
	Pin          uint16 `cbor:"12,keyasint"`
	PinEnabled   bool   `cbor:"13,keyasint"`
	Name         string `cbor:"14,keyasint"`
	FilterStatus uint16 `cbor:"15,keyasint"`
	FilterSat    uint16 `cbor:"16,keyasint"`
}

const recordVersion = 1

func settingsToRecord(set station.Settings) *settingsRecord {
	return &settingsRecord{
		SuctionLevel: set.SuctionLevel,
		SelectFlow:   set.SelectFlow,
		WorkActive:   set.Intakes[station.IntakeWork].Active,
		WorkDelay:    set.Intakes[station.IntakeWork].DelaySeconds,
		StandActive:  set.Intakes[station.IntakeStand].Active,
		StandDelay:   set.Intakes[station.IntakeStand].DelaySeconds,
		PedalActive:  set.PedalActive,
		PedalMode:    set.PedalMode,
		Continuous:   set.ContinuousSuction,
		USBConnect:   set.USBConnect,
		Beep:         set.Beep,
		Locked:       set.Locked,
		Pin:          set.Pin,
		PinEnabled:   set.PinEnabled,
		Name:         set.Name,
		FilterStatus: set.FilterStatus,
		FilterSat:    set.FilterSaturation,
	}
}

func recordToSettings(rec *settingsRecord) station.Settings {
	set := station.Settings{
		SuctionLevel:      rec.SuctionLevel,
		SelectFlow:        rec.SelectFlow,
		PedalActive:       rec.PedalActive,
		PedalMode:         rec.PedalMode,
		ContinuousSuction: rec.Continuous,
		USBConnect:        rec.USBConnect,
		Beep:              rec.Beep,
		Locked:            rec.Locked,
		Pin:               rec.Pin,
		PinEnabled:        rec.PinEnabled,
		Name:              rec.Name,
		FilterStatus:      rec.FilterStatus,
		FilterSaturation:  rec.FilterSat,
	}
	set.Intakes[station.IntakeWork] = station.Intake{Active: rec.WorkActive, DelaySeconds: rec.WorkDelay}
	set.Intakes[station.IntakeStand] = station.Intake{Active: rec.StandActive, DelaySeconds: rec.StandDelay}
	return set
}

// load reads the current record. A missing file is an empty record, not an
// error; a corrupt file is reported so the caller can log it, with an empty
// record to carry on with.
func (s *Store) load() (*record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &record{Version: recordVersion}, nil
		}
		return &record{Version: recordVersion}, fmt.Errorf("failed to read state file: %w", err)
	}

	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return &record{Version: recordVersion}, fmt.Errorf("failed to decode state file: %w", err)
	}
	return &rec, nil
}

// save writes the record through a temp file and rename.
func (s *Store) save(rec *record) error {
	rec.Version = recordVersion
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode state file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".fae-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// LoadAddress returns the persisted adopted address for one channel, with
// ok=false when none is stored.
func (s *Store) LoadAddress(channel int) (addr byte, ok bool, err error) {
	if channel < 0 || channel >= MaxChannels {
		return 0, false, nil
	}
	rec, err := s.load()
	if err != nil {
		return 0, false, err
	}
	cr := rec.Channels[channel]
	return cr.Address, cr.HasAddress, nil
}

// SaveAddress persists one channel's adopted address immediately. A
// corrupt existing file is replaced by a fresh record rather than kept.
func (s *Store) SaveAddress(channel int, addr byte) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("channel %d out of range", channel)
	}
	rec, _ := s.load()
	rec.Channels[channel].HasAddress = true
	rec.Channels[channel].Address = addr
	return s.save(rec)
}

// LoadIdentity returns the persisted identity bytes for one channel, nil
// when none are stored.
func (s *Store) LoadIdentity(channel int) ([]byte, error) {
	if channel < 0 || channel >= MaxChannels {
		return nil, nil
	}
	rec, err := s.load()
	if err != nil {
		return nil, err
	}
	return rec.Channels[channel].Identity, nil
}

// SaveIdentity persists one channel's identity bytes immediately.
func (s *Store) SaveIdentity(channel int, identity []byte) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("channel %d out of range", channel)
	}
	rec, _ := s.load()
	rec.Channels[channel].Identity = append([]byte(nil), identity...)
	return s.save(rec)
}

// LoadSettings returns the persisted device settings, with ok=false when
// none are stored.
func (s *Store) LoadSettings() (set station.Settings, ok bool, err error) {
	rec, err := s.load()
	if err != nil {
		return station.Settings{}, false, err
	}
	if rec.Settings == nil {
		return station.Settings{}, false, nil
	}
	return recordToSettings(rec.Settings), true, nil
}

// SaveSettings persists the device settings blob.
func (s *Store) SaveSettings(set station.Settings) error {
	rec, _ := s.load()
	rec.Settings = settingsToRecord(set)
	return s.save(rec)
}

// Wipe removes the state file. A missing file is fine.
func (s *Store) Wipe() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
