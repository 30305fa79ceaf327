// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks link traffic and error rates
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	ChunksSent       uint64
	ChunksReceived   uint64
	MessagesSent     uint64
	MessagesReceived uint64
	MarkerErrors     uint64
	ChecksumErrors   uint64
	OversizeErrors   uint64
	CodecErrors      uint64
	Resends          uint64
	Timeouts         uint64

	// Rates (calculated)
	ChunkRate float64 // chunks/sec received
	ErrorRate float64 // errors/sec
}

// Counters is a point-in-time copy of the statistics counters
type Counters struct {
	ChunksSent       uint64
	ChunksReceived   uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Errors           uint64
	Resends          uint64
	Timeouts         uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordSent counts one framed message written as n chunks
func (s *Statistics) RecordSent(chunks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessagesSent++
	s.ChunksSent += uint64(chunks)
	s.LastUpdateTime = time.Now()
}

// RecordResend counts a resend of an unanswered message
func (s *Statistics) RecordResend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resends++
}

// RecordTimeout counts an expired wait
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timeouts++
}

// RecordChunk counts a changed chunk read from the channel
func (s *Statistics) RecordChunk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChunksReceived++
	s.LastUpdateTime = time.Now()
}

// RecordMessage counts a successfully decoded message
func (s *Statistics) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessagesReceived++
}

// RecordError classifies a framing or codec error
func (s *Statistics) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		s.ChecksumErrors++
	case errors.Is(err, ErrMessageTooLarge):
		s.OversizeErrors++
	case errors.Is(err, ErrBadMarker):
		s.MarkerErrors++
	default:
		s.CodecErrors++
	}
}

// Errors returns the total number of errors recorded
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors()
}

func (s *Statistics) errors() uint64 {
	return s.MarkerErrors + s.ChecksumErrors + s.OversizeErrors + s.CodecErrors
}

// Snapshot returns the counters under the lock. Use it when another
// goroutine may be recording.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{
		ChunksSent:       s.ChunksSent,
		ChunksReceived:   s.ChunksReceived,
		MessagesSent:     s.MessagesSent,
		MessagesReceived: s.MessagesReceived,
		Errors:           s.errors(),
		Resends:          s.Resends,
		Timeouts:         s.Timeouts,
	}
}

// CalculateRates calculates chunk and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ChunkRate = float64(s.ChunksReceived) / elapsed
		s.ErrorRate = float64(s.errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Chunks Sent:     %8d\n", s.ChunksSent)
	result += fmt.Sprintf("Chunks Received: %8d\n", s.ChunksReceived)
	result += fmt.Sprintf("Messages Sent:   %8d\n", s.MessagesSent)
	result += fmt.Sprintf("Messages Recv:   %8d\n", s.MessagesReceived)

	if s.MarkerErrors > 0 {
		result += fmt.Sprintf("Marker Errors:   %8d\n", s.MarkerErrors)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.OversizeErrors > 0 {
		result += fmt.Sprintf("Oversize Msgs:   %8d\n", s.OversizeErrors)
	}
	if s.CodecErrors > 0 {
		result += fmt.Sprintf("Codec Errors:    %8d\n", s.CodecErrors)
	}
	if s.Resends > 0 {
		result += fmt.Sprintf("Resends:         %8d\n", s.Resends)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}

	result += fmt.Sprintf("Chunk Rate:      %8.1f chunks/sec\n", s.ChunkRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.ChunksSent = 0
	s.ChunksReceived = 0
	s.MessagesSent = 0
	s.MessagesReceived = 0
	s.MarkerErrors = 0
	s.ChecksumErrors = 0
	s.OversizeErrors = 0
	s.CodecErrors = 0
	s.Resends = 0
	s.Timeouts = 0
	s.ChunkRate = 0
	s.ErrorRate = 0
}
