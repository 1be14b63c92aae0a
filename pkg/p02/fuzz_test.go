// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// buildRandomFrame creates a frame with random header fields and 0-64 data bytes
func buildRandomFrame(rng *rand.Rand) *Frame {
	data := make([]byte, rng.Intn(MaxDataLen+1))
	rng.Read(data)
	return NewFrame(
		byte(rng.Intn(256)),
		byte(rng.Intn(256)),
		byte(rng.Intn(256)),
		byte(rng.Intn(256)),
		data,
	)
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		// Generate random byte sequence of random length (1-512 bytes)
		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		// Feed all bytes to decoder - should not panic
		for _, b := range data {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RandomFrames encodes random valid frames and verifies
// they decode back to the same fields
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		f := buildRandomFrame(rng)

		wire, err := EncodeFrame(f)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}

		frames, errs := feedAll(d, wire)
		if len(errs) != 0 {
			t.Errorf("Round %d: unexpected decode errors: %v", i, errs)
			continue
		}
		if len(frames) != 1 {
			t.Errorf("Round %d: expected 1 frame, got %d", i, len(frames))
			continue
		}
		if !framesEqual(frames[0], f) {
			t.Errorf("Round %d: round trip mismatch:\nsent: %+v\ngot:  %+v", i, f, frames[0])
		}
	}
}

// TestFuzzDecoder_CorruptedFrames corrupts one wire byte per round and
// verifies the decoder never reproduces the original frame
func TestFuzzDecoder_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		f := buildRandomFrame(rng)

		wire, err := EncodeFrame(f)
		if err != nil {
			t.Fatalf("Round %d: encode error: %v", i, err)
		}

		// Corrupt a random byte between the delimiters
		if len(wire) <= 4 {
			continue
		}
		corruptIdx := rng.Intn(len(wire)-4) + 2
		wire[corruptIdx] ^= byte(rng.Intn(255) + 1)

		// Feed corrupted frame - should not panic and must never
		// decode back to the frame we started with
		frames, _ := feedAll(d, wire)
		for _, got := range frames {
			if framesEqual(got, f) {
				t.Errorf("Round %d: corrupted byte %d decoded as the original frame", i, corruptIdx)
			}
		}
	}
}

// TestFuzzDecoder_MissingBytes tests frames with missing bytes
func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		f := buildRandomFrame(rng)
		wire := MustEncodeFrame(f)

		// Remove random bytes
		numToRemove := rng.Intn(5) + 1
		for j := 0; j < numToRemove && len(wire) > 2; j++ {
			idx := rng.Intn(len(wire))
			wire = append(wire[:idx], wire[idx+1:]...)
		}

		// Feed truncated frame - should not panic
		for _, b := range wire {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_ExtraBytes tests frames with extra random bytes inserted
func TestFuzzDecoder_ExtraBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		f := buildRandomFrame(rng)
		wire := MustEncodeFrame(f)

		// Insert random bytes at random positions
		numToInsert := rng.Intn(5) + 1
		for j := 0; j < numToInsert; j++ {
			idx := rng.Intn(len(wire) + 1)
			extraByte := byte(rng.Intn(256))
			wire = append(wire[:idx], append([]byte{extraByte}, wire[idx:]...)...)
		}

		// Feed modified frame - should not panic
		for _, b := range wire {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RepeatedMarkers tests handling of marker byte runs
func TestFuzzDecoder_RepeatedMarkers(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		// Send random number of marker bytes
		numMarkers := rng.Intn(100) + 1
		for j := 0; j < numMarkers; j++ {
			d.DecodeByte(DLE)
		}

		// Now send a valid frame
		f := NewFrame(0x0B, 0x23, FIDProtocol, CmdReadSuctionLevel, []byte{0x01})
		frames, errs := feedAll(d, MustEncodeFrame(f))

		if len(errs) != 0 {
			t.Errorf("Round %d: unexpected error after marker run: %v", i, errs)
		}
		if len(frames) != 1 || !framesEqual(frames[0], f) {
			t.Errorf("Round %d: expected valid frame after marker run", i)
		}
	}
}

// ============================================================
// Checksum Fuzz Tests
// ============================================================

// TestFuzzChecksum_RandomData tests BCC calculation with random data
func TestFuzzChecksum_RandomData(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		length := rng.Intn(1000) + 1
		data := make([]byte, length)
		rng.Read(data)

		bcc1 := Checksum(data)
		bcc2 := Checksum(data)

		// BCC should be deterministic
		if bcc1 != bcc2 {
			t.Errorf("Round %d: BCC not deterministic: 0x%02X != 0x%02X", i, bcc1, bcc2)
		}

		// Modify one byte - an XOR checksum always sees a single-byte change
		idx := rng.Intn(len(data))
		data[idx] ^= byte(rng.Intn(255) + 1)
		if Checksum(data) == bcc1 {
			t.Errorf("Round %d: single-byte change left the BCC unchanged", i)
		}
	}
}

// ============================================================
// Handshake Fuzz Tests
// ============================================================

// TestFuzzHandshake_RandomBytes feeds random bytes to the handshake machine
// and verifies it stays in a valid state
func TestFuzzHandshake_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		h := NewHandshake()
		now := time.Now()

		length := rng.Intn(256) + 1
		data := make([]byte, length)
		rng.Read(data)

		sawMarker := false
		for _, b := range data {
			if b == DLE {
				sawMarker = true
			}
			h.Feed(b, now)
			now = now.Add(time.Duration(rng.Intn(100)) * time.Millisecond)
		}

		switch h.State() {
		case HandshakeIdle, HandshakeSeenNak, HandshakeSentSyn, HandshakeSentAck2, HandshakeFrameMode:
		default:
			t.Errorf("Round %d: invalid handshake state %d", i, h.State())
		}

		// Frame mode is absorbing: one marker byte and the machine stays there
		if sawMarker && !h.InFrameMode() {
			t.Errorf("Round %d: marker byte seen but machine not in frame mode", i)
		}
	}
}

// ============================================================
// Formatter Fuzz Tests
// ============================================================

// TestFuzzFormatter_RandomFrames tests formatting with random frames
func TestFuzzFormatter_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		f := buildRandomFrame(rng)

		// Format - should not panic
		result := FormatFrame(f)
		if result == "" {
			t.Errorf("Round %d: FormatFrame returned empty string", i)
		}

		typeStr := ControlName(f.Control)
		if typeStr == "" {
			t.Errorf("Round %d: ControlName returned empty string", i)
		}

		// FormatData - should not panic
		FormatData(f.Control, f.Data)
	}
}
