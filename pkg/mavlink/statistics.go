// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Statistics tracks message statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalMessages    uint64
	ValidMessages    uint64
	Bytes            uint64
	ChecksumErrors   uint64
	FramingErrors    uint64
	LengthMismatches uint64
	InvalidAngles    uint64
	InvalidRates     uint64
	InvalidValues    uint64
	SequenceGaps     uint64
	ByID             map[uint8]uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // errors/sec

	lastSeq map[uint8]uint8
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.Reset()
	return s
}

// Update updates statistics based on a message and its errors. Either m or
// decodeErr is set.
func (s *Statistics) Update(m *Message, decodeErr error, validationErrors []ValidationError) {
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrChecksumMismatch) {
			s.ChecksumErrors++
		} else {
			s.FramingErrors++
		}
		return
	}

	s.TotalMessages++
	s.Bytes += uint64(m.length) + 1 + HeaderSize + ChecksumSize
	s.ByID[m.id]++

	if last, ok := s.lastSeq[m.systemID]; ok && m.seq != last+1 {
		s.SequenceGaps++
	}
	s.lastSeq[m.systemID] = m.seq

	if len(validationErrors) == 0 {
		s.ValidMessages++
		return
	}
	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyLengthMismatch:
			s.LengthMismatches++
		case AnomalyInvalidAngle:
			s.InvalidAngles++
		case AnomalyInvalidRate:
			s.InvalidRates++
		case AnomalyInvalidValue:
			s.InvalidValues++
		}
	}
}

// Errors returns the total number of decode and validation errors
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.FramingErrors + s.LengthMismatches +
		s.InvalidAngles + s.InvalidRates + s.InvalidValues
}

// CalculateRates calculates message and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.MessageRate = float64(s.TotalMessages) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalMessages > 0 {
		validPercent = float64(s.ValidMessages) * 100.0 / float64(s.TotalMessages)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	fmt.Fprintf(&b, "Total Messages:  %8d (%d bytes)\n", s.TotalMessages, s.Bytes)
	fmt.Fprintf(&b, "Valid Messages:  %8d (%.1f%%)\n", s.ValidMessages, validPercent)

	if s.ChecksumErrors > 0 {
		fmt.Fprintf(&b, "Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.FramingErrors > 0 {
		fmt.Fprintf(&b, "Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.LengthMismatches > 0 {
		fmt.Fprintf(&b, "Length Mismatch: %8d\n", s.LengthMismatches)
	}
	if s.InvalidAngles+s.InvalidRates+s.InvalidValues > 0 {
		fmt.Fprintf(&b, "Anomalous Values:%8d\n", s.InvalidAngles+s.InvalidRates+s.InvalidValues)
		if s.InvalidAngles > 0 {
			fmt.Fprintf(&b, "  Invalid Angle:    %5d\n", s.InvalidAngles)
		}
		if s.InvalidRates > 0 {
			fmt.Fprintf(&b, "  Invalid Rate:     %5d\n", s.InvalidRates)
		}
		if s.InvalidValues > 0 {
			fmt.Fprintf(&b, "  Invalid Value:    %5d\n", s.InvalidValues)
		}
	}
	if s.SequenceGaps > 0 {
		fmt.Fprintf(&b, "Sequence Gaps:   %8d\n", s.SequenceGaps)
	}

	ids := make([]int, 0, len(s.ByID))
	for id := range s.ByID {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %-20s %3d %8d\n", FormatMessageType(uint8(id)), id, s.ByID[uint8(id)])
	}

	fmt.Fprintf(&b, "Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")

	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByID:           make(map[uint8]uint64),
		lastSeq:        make(map[uint8]uint8),
	}
}
