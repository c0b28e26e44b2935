// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package picoframe

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates.
// It is safe for use by a reader goroutine and a display concurrently.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// Counters is a point in time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	Resyncs         uint64
	DiscardedBytes  uint64
	ShortReads      uint64
	UnknownCommands uint64
	AnomalousValues uint64
	InvalidPWM      uint64
	InvalidStatus   uint64
	InvalidDoor     uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

func (s *Statistics) recordFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalFrames++
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) recordResync(discarded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resyncs++
	s.DiscardedBytes += uint64(discarded)
	s.LastUpdateTime = time.Now()
}

func (s *Statistics) recordShortRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShortReads++
}

func (s *Statistics) recordUnknown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnknownCommands++
}

// Update records the validation result of a received frame
func (s *Statistics) Update(validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(validationErrors) == 0 {
		s.ValidFrames++
		return
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyInvalidPWM:
			s.InvalidPWM++
			s.AnomalousValues++
		case AnomalyInvalidStatus:
			s.InvalidStatus++
			s.AnomalousValues++
		case AnomalyInvalidDoor:
			s.InvalidDoor++
			s.AnomalousValues++
		}
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.Resyncs + s.ShortReads + s.UnknownCommands + s.AnomalousValues
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, percent(snap.ValidFrames))

	if snap.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d (%d bytes discarded)\n", snap.Resyncs, snap.DiscardedBytes)
	}
	if snap.ShortReads > 0 {
		result += fmt.Sprintf("Short Reads:     %8d\n", snap.ShortReads)
	}
	if snap.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d (%.1f%%)\n", snap.UnknownCommands, percent(snap.UnknownCommands))
	}
	if snap.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", snap.AnomalousValues, percent(snap.AnomalousValues))
		if snap.InvalidPWM > 0 {
			result += fmt.Sprintf("  PWM (>100):       %5d\n", snap.InvalidPWM)
		}
		if snap.InvalidStatus > 0 {
			result += fmt.Sprintf("  Status (>6):      %5d\n", snap.InvalidStatus)
		}
		if snap.InvalidDoor > 0 {
			result += fmt.Sprintf("  Door index:       %5d\n", snap.InvalidDoor)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{StartTime: now, LastUpdateTime: now}
}
