// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.cbor"))
}

// ============================================================
// Address Tests
// ============================================================

func TestStore_AddressRoundTrip(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.LoadAddress(0)
	if err != nil || ok {
		t.Fatalf("fresh store should have no address, got ok=%v err=%v", ok, err)
	}

	if err := s.SaveAddress(0, 0x23); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveAddress(1, 0x42); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	addr, ok, err := s.LoadAddress(0)
	if err != nil || !ok || addr != 0x23 {
		t.Errorf("channel 0: addr=0x%02X ok=%v err=%v", addr, ok, err)
	}
	addr, ok, err = s.LoadAddress(1)
	if err != nil || !ok || addr != 0x42 {
		t.Errorf("channel 1: addr=0x%02X ok=%v err=%v", addr, ok, err)
	}
}

func TestStore_AddressZeroIsStored(t *testing.T) {
	// ok must come from the stored flag, not from the address value.
	s := testStore(t)
	if err := s.SaveAddress(0, 0x00); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	addr, ok, err := s.LoadAddress(0)
	if err != nil || !ok || addr != 0x00 {
		t.Errorf("stored zero address lost: addr=0x%02X ok=%v err=%v", addr, ok, err)
	}
}

func TestStore_ChannelOutOfRange(t *testing.T) {
	s := testStore(t)

	if err := s.SaveAddress(MaxChannels, 0x11); err == nil {
		t.Error("expected error for out-of-range channel")
	}
	if _, ok, err := s.LoadAddress(-1); ok || err != nil {
		t.Error("out-of-range load should read as empty")
	}
}

// ============================================================
// Identity Tests
// ============================================================

func TestStore_IdentityRoundTrip(t *testing.T) {
	s := testStore(t)

	id := []byte("0102030405060708090A0B0C0D0E0F10")
	if err := s.SaveIdentity(1, id); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.LoadIdentity(1)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if string(got) != string(id) {
		t.Errorf("identity = %q, want %q", got, id)
	}

	// The other channel stays empty.
	got, err = s.LoadIdentity(0)
	if err != nil || got != nil {
		t.Errorf("channel 0 should be empty, got %v err=%v", got, err)
	}
}

// ============================================================
// Settings Tests
// ============================================================

func TestStore_SettingsRoundTrip(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.LoadSettings()
	if err != nil || ok {
		t.Fatalf("fresh store should have no settings, got ok=%v err=%v", ok, err)
	}

	set := station.DefaultSettings()
	set.SuctionLevel = 3
	set.SelectFlow = 450
	set.Intakes[station.IntakeWork].DelaySeconds = 42
	set.Intakes[station.IntakeStand].Active = false
	set.Pin = 1234
	set.Name = "CORNER-BENCH"
	set.FilterSaturation = 17

	if err := s.SaveSettings(set); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, err := s.LoadSettings()
	if err != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, err)
	}
	if got != set {
		t.Errorf("settings round trip mismatch:\nsaved:  %+v\nloaded: %+v", set, got)
	}
}

func TestStore_SettingsSurviveAddressSave(t *testing.T) {
	// Saves are read-modify-write: one field class must not clobber another.
	s := testStore(t)

	set := station.DefaultSettings()
	set.Name = "KEEP-ME"
	if err := s.SaveSettings(set); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveAddress(0, 0x55); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, _ := s.LoadSettings()
	if !ok || got.Name != "KEEP-ME" {
		t.Error("address save clobbered the settings blob")
	}
	addr, ok, _ := s.LoadAddress(0)
	if !ok || addr != 0x55 {
		t.Error("address lost after settings save")
	}
}

// ============================================================
// Corruption and Wipe Tests
// ============================================================

func TestStore_CorruptFileDegrades(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(s.Path(), []byte("not cbor at all"), 0644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := s.LoadSettings()
	if ok {
		t.Error("corrupt file should not produce settings")
	}
	if err == nil {
		t.Error("corrupt file should be reported")
	}

	// A save afterwards heals the file from a clean record.
	if err := s.SaveAddress(0, 0x10); err != nil {
		t.Errorf("save over a corrupt file should heal it, got %v", err)
	}
	addr, ok, err := s.LoadAddress(0)
	if err != nil || !ok || addr != 0x10 {
		t.Errorf("healed file unreadable: addr=0x%02X ok=%v err=%v", addr, ok, err)
	}
}

func TestStore_Wipe(t *testing.T) {
	s := testStore(t)
	if err := s.SaveAddress(0, 0x23); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := s.Wipe(); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("state file should be gone")
	}

	// Wiping twice is fine.
	if err := s.Wipe(); err != nil {
		t.Errorf("second wipe failed: %v", err)
	}

	_, ok, err := s.LoadAddress(0)
	if ok || err != nil {
		t.Error("wiped store should read as empty")
	}
}
