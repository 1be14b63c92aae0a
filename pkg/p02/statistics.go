// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks per-channel frame and link counters
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesTotal    uint64
	FramesValid    uint64
	ChecksumErrors uint64
	EscapeErrors   uint64
	OverflowErrors uint64
	IgnoredFrames  uint64 // decoded fine, addressed elsewhere or unrecognized
	RepliesSent    uint64
	SynsSent       uint64
	Handshakes     uint64 // completed negotiations
	WriteErrors    uint64 // transport write failures

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoder outcome: a frame, a decode error, or neither.
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	if decodeErr == nil && frame == nil {
		return
	}
	s.FramesTotal++

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrEscape):
			s.EscapeErrors++
		case errors.Is(decodeErr, ErrOverflow):
			s.OverflowErrors++
		}
		return
	}

	s.FramesValid++
	s.LastUpdateTime = time.Now()
}

// ErrorTotal sums every error counter.
func (s *Statistics) ErrorTotal() uint64 {
	return s.ChecksumErrors + s.EscapeErrors + s.OverflowErrors + s.WriteErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesTotal) / elapsed
		s.ErrorRate = float64(s.ErrorTotal()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.FramesTotal > 0 {
		validPercent = float64(s.FramesValid) * 100.0 / float64(s.FramesTotal)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.FramesTotal)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.FramesValid, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("BCC Errors:      %8d\n", s.ChecksumErrors)
	}
	if s.EscapeErrors > 0 {
		result += fmt.Sprintf("Escape Errors:   %8d\n", s.EscapeErrors)
	}
	if s.OverflowErrors > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", s.OverflowErrors)
	}
	if s.IgnoredFrames > 0 {
		result += fmt.Sprintf("Ignored Frames:  %8d\n", s.IgnoredFrames)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}

	result += fmt.Sprintf("Replies Sent:    %8d\n", s.RepliesSent)
	result += fmt.Sprintf("SYNs Sent:       %8d\n", s.SynsSent)
	result += fmt.Sprintf("Handshakes:      %8d\n", s.Handshakes)
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{}
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
}
