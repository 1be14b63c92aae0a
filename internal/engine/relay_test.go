// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// ============================================================
// Test Helpers
// ============================================================

// quietLogger returns a logger that swallows everything. Engine and relay
// tests only care about behavior, not log output.
func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeDriver records every output change the coordinator pushes.
type fakeDriver struct {
	sets   []bool
	setErr error
	closed bool
}

func (d *fakeDriver) Set(on bool) error {
	d.sets = append(d.sets, on)
	return d.setErr
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

func newTestRelay() *RelayCoordinator {
	return NewRelayCoordinator(quietLogger(), nil)
}

// ============================================================
// Basic Work Signal Tests
// ============================================================

func TestRelay_InitialState(t *testing.T) {
	r := newTestRelay()
	if r.On() {
		t.Error("Relay should start off")
	}
	if r.WorkMask() != 0 {
		t.Errorf("Work mask should start empty, got 0x%02X", r.WorkMask())
	}
	if r.AfterRunOwner() != -1 {
		t.Errorf("No after-run should be pending, owner = %d", r.AfterRunOwner())
	}
}

func TestRelay_WorkOnTurnsRelayOn(t *testing.T) {
	r := newTestRelay()
	r.WorkOn(0)
	if !r.On() {
		t.Error("Relay should be on after WorkOn")
	}
	if r.WorkMask() != 0x01 {
		t.Errorf("Expected mask 0x01, got 0x%02X", r.WorkMask())
	}
}

func TestRelay_WorkOffOpensAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, 3*time.Second)

	if r.AfterRunOwner() != 0 {
		t.Fatalf("Expected after-run owner 0, got %d", r.AfterRunOwner())
	}
	if got := r.AfterRunRemaining(t0); got != 3*time.Second {
		t.Errorf("Expected 3s remaining, got %v", got)
	}

	// Mid-window the relay stays on.
	r.Evaluate(t0.Add(time.Second), false)
	if !r.On() {
		t.Error("Relay should stay on during the after-run window")
	}

	// Past the deadline it drops and the window clears.
	r.Evaluate(t0.Add(3*time.Second), false)
	if r.On() {
		t.Error("Relay should be off once the after-run expires")
	}
	if r.AfterRunOwner() != -1 {
		t.Errorf("After-run should be cleared, owner = %d", r.AfterRunOwner())
	}
}

func TestRelay_WorkOffWithoutWorkOn(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	// No work signal was ever set: nothing to run after.
	r.WorkOff(0, t0, 3*time.Second)
	if r.AfterRunOwner() != -1 {
		t.Errorf("Work-off on an idle relay should not open an after-run, owner = %d", r.AfterRunOwner())
	}
	r.Evaluate(t0, false)
	if r.On() {
		t.Error("Relay should stay off")
	}
}

func TestRelay_WorkOnCancelsAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, 3*time.Second)
	if r.AfterRunOwner() != 0 {
		t.Fatal("After-run should be pending")
	}

	// A fresh work signal supersedes the pending window.
	r.WorkOn(1)
	if r.AfterRunOwner() != -1 {
		t.Errorf("WorkOn should cancel the after-run, owner = %d", r.AfterRunOwner())
	}
	if !r.On() {
		t.Error("Relay should be on")
	}
}

func TestRelay_RedundantWorkOffDoesNotExtend(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, 3*time.Second)
	deadline := r.AfterRunRemaining(t0)

	// A repeated work-off with a longer delay must not move the deadline.
	r.WorkOff(0, t0.Add(time.Second), 30*time.Second)
	if got := r.AfterRunRemaining(t0); got != deadline {
		t.Errorf("Redundant work-off moved the deadline: %v != %v", got, deadline)
	}
}

func TestRelay_ChannelOutOfRange(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(-1)
	r.WorkOn(MaxChannels)
	if r.WorkMask() != 0 || r.On() {
		t.Error("Out-of-range WorkOn should be ignored")
	}

	r.WorkOff(-1, t0, time.Second)
	r.WorkOff(MaxChannels, t0, time.Second)
	r.DropChannel(-1)
	r.DropChannel(MaxChannels)
	if r.AfterRunOwner() != -1 {
		t.Error("Out-of-range calls should not touch the after-run")
	}
}

// ============================================================
// Multi-Channel Arbitration Tests
// ============================================================

func TestRelay_TwoChannelArbitration(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	// ch0 starts working: relay on.
	r.WorkOn(0)
	if !r.On() {
		t.Fatal("Relay should be on with ch0 working")
	}

	// ch1 joins: still on.
	r.WorkOn(1)
	if !r.On() || r.WorkMask() != 0x03 {
		t.Fatalf("Relay should be on with both channels, mask 0x%02X", r.WorkMask())
	}

	// ch0 stops: ch1 is still working, so no after-run opens.
	r.WorkOff(0, t0, 3*time.Second)
	if !r.On() {
		t.Error("Relay should stay on while ch1 works")
	}
	if r.AfterRunOwner() != -1 {
		t.Errorf("No after-run while another channel works, owner = %d", r.AfterRunOwner())
	}

	// ch1 stops last: it owns the after-run.
	r.WorkOff(1, t0, 3*time.Second)
	if r.AfterRunOwner() != 1 {
		t.Fatalf("Expected after-run owner 1, got %d", r.AfterRunOwner())
	}
	r.Evaluate(t0.Add(time.Second), false)
	if !r.On() {
		t.Error("Relay should stay on during ch1's after-run")
	}

	// Delay elapses: off.
	r.Evaluate(t0.Add(4*time.Second), false)
	if r.On() {
		t.Error("Relay should be off after the after-run expires")
	}
	if r.AfterRunOwner() != -1 {
		t.Error("After-run should be cleared")
	}
}

func TestRelay_WorkDuringForeignAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, 3*time.Second)

	// ch1 starts while ch0's after-run runs: the window is cancelled,
	// and when ch1 stops it opens its own.
	r.WorkOn(1)
	if r.AfterRunOwner() != -1 {
		t.Fatal("WorkOn should cancel the foreign after-run")
	}
	r.WorkOff(1, t0.Add(time.Second), 5*time.Second)
	if r.AfterRunOwner() != 1 {
		t.Errorf("Expected owner 1, got %d", r.AfterRunOwner())
	}
	if got := r.AfterRunRemaining(t0.Add(time.Second)); got != 5*time.Second {
		t.Errorf("Expected 5s remaining, got %v", got)
	}
}

// ============================================================
// Orphan Release Tests
// ============================================================

func TestRelay_DropChannelReleasesOwnedAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(1)
	r.WorkOff(1, t0, time.Hour)
	if r.AfterRunOwner() != 1 {
		t.Fatal("After-run should be pending for ch1")
	}

	// ch1 goes away: its after-run must not keep the relay on forever.
	r.DropChannel(1)
	if r.AfterRunOwner() != -1 {
		t.Errorf("Dropping the owner should clear the after-run, owner = %d", r.AfterRunOwner())
	}
	r.Evaluate(t0.Add(time.Millisecond), false)
	if r.On() {
		t.Error("Relay should be off after the owner vanished")
	}
}

func TestRelay_DropChannelKeepsForeignAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, time.Minute)

	// Dropping the other channel leaves ch0's window alone.
	r.DropChannel(1)
	if r.AfterRunOwner() != 0 {
		t.Errorf("Foreign after-run should survive, owner = %d", r.AfterRunOwner())
	}
}

func TestRelay_DropChannelClearsWorkBit(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOn(1)
	r.DropChannel(0)
	if r.WorkMask() != 0x02 {
		t.Errorf("Expected mask 0x02 after dropping ch0, got 0x%02X", r.WorkMask())
	}
	r.Evaluate(t0, false)
	if !r.On() {
		t.Error("Relay should stay on for the surviving channel")
	}
}

// ============================================================
// Continuous Suction Override Tests
// ============================================================

func TestRelay_ContinuousForcesOn(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.Evaluate(t0, true)
	if !r.On() {
		t.Error("Continuous suction should force the relay on")
	}

	r.Evaluate(t0.Add(time.Second), false)
	if r.On() {
		t.Error("Relay should drop once continuous suction clears")
	}
}

func TestRelay_ContinuousCancelsAfterRun(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.WorkOff(0, t0, 3*time.Second)
	if r.AfterRunOwner() != 0 {
		t.Fatal("After-run should be pending")
	}

	// Continuous mode takes over: the pending window is dropped, not
	// merely shadowed.
	r.Evaluate(t0.Add(time.Second), true)
	if !r.On() {
		t.Error("Relay should be on in continuous mode")
	}
	if r.AfterRunOwner() != -1 {
		t.Errorf("Continuous mode should clear the after-run, owner = %d", r.AfterRunOwner())
	}

	// Clearing continuous with no work pending drops the relay at once;
	// the old after-run does not resume.
	r.Evaluate(t0.Add(2*time.Second), false)
	if r.On() {
		t.Error("Relay should be off, the cancelled after-run must not resume")
	}
}

func TestRelay_WorkWinsRegardlessOfContinuous(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	r.WorkOn(0)
	r.Evaluate(t0, true)
	if !r.On() {
		t.Error("Relay should be on")
	}
	r.Evaluate(t0, false)
	if !r.On() {
		t.Error("Relay should stay on while work is active")
	}
}

// ============================================================
// Driver and Transition Tests
// ============================================================

func TestRelay_DriverSeesOnlyChanges(t *testing.T) {
	drv := &fakeDriver{}
	r := NewRelayCoordinator(quietLogger(), drv)
	t0 := time.Now()

	r.Evaluate(t0, false)
	r.Evaluate(t0, false)
	if len(drv.sets) != 0 {
		t.Fatalf("No output change expected, driver saw %v", drv.sets)
	}

	r.WorkOn(0)
	r.Evaluate(t0, false)
	r.Evaluate(t0, false)
	if len(drv.sets) != 1 || !drv.sets[0] {
		t.Fatalf("Expected a single on-transition, driver saw %v", drv.sets)
	}

	r.WorkOff(0, t0, 0)
	r.Evaluate(t0.Add(time.Millisecond), false)
	if len(drv.sets) != 2 || drv.sets[1] {
		t.Fatalf("Expected an off-transition, driver saw %v", drv.sets)
	}

	if r.Transitions() != 2 {
		t.Errorf("Expected 2 transitions, got %d", r.Transitions())
	}
}

func TestRelay_DriverFailureTolerated(t *testing.T) {
	drv := &fakeDriver{setErr: errors.New("bus stuck")}
	r := NewRelayCoordinator(quietLogger(), drv)

	// The coordinator keeps its logical state even when hardware writes
	// fail; the next change still reaches the driver.
	r.WorkOn(0)
	if !r.On() {
		t.Error("Logical state should track despite driver errors")
	}
	r.WorkOff(0, time.Now(), 0)
	r.Evaluate(time.Now().Add(time.Millisecond), false)
	if len(drv.sets) != 2 {
		t.Errorf("Driver should see both transitions, saw %v", drv.sets)
	}
}

func TestRelay_Close(t *testing.T) {
	drv := &fakeDriver{}
	r := NewRelayCoordinator(quietLogger(), drv)

	r.WorkOn(0)
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.On() {
		t.Error("Relay should be off after Close")
	}
	if !drv.closed {
		t.Error("Driver should be closed")
	}
	if len(drv.sets) != 2 || drv.sets[1] {
		t.Errorf("Close should push the off state, driver saw %v", drv.sets)
	}
}

func TestRelay_CloseWithoutDriver(t *testing.T) {
	r := newTestRelay()
	r.WorkOn(0)
	if err := r.Close(); err != nil {
		t.Fatalf("Close without driver failed: %v", err)
	}
	if r.On() {
		t.Error("Relay should be off after Close")
	}
}

func TestRelay_AfterRunRemainingClamps(t *testing.T) {
	r := newTestRelay()
	t0 := time.Now()

	if got := r.AfterRunRemaining(t0); got != 0 {
		t.Errorf("No pending after-run should report 0, got %v", got)
	}

	r.WorkOn(0)
	r.WorkOff(0, t0, time.Second)
	if got := r.AfterRunRemaining(t0.Add(2 * time.Second)); got != 0 {
		t.Errorf("Expired after-run should report 0, got %v", got)
	}
}
