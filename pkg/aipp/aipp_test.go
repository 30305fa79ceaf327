// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

func newTestFramer(t *testing.T, opts ...FramerOption) *Framer {
	t.Helper()
	f, err := NewFramer(DefaultMTU, opts...)
	require.NoError(t, err)
	return f
}

func sequence(n int, start byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = start + byte(i)
	}
	return data
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_Empty(t *testing.T) {
	assert.Equal(t, byte(0), Checksum(nil))
}

func TestChecksum_Wraps(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"single", []byte{0x42}, 0x42},
		{"start notify", []byte{0x71, 0x01}, 0x72},
		{"overflow", []byte{0xFF, 0x02}, 0x01},
		{"many", bytes.Repeat([]byte{0x10}, 20), 0x40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Checksum(tt.data))
		})
	}
}

// ============================================================
// Framer Encode Tests
// ============================================================

func TestNewFramer_RejectsSmallMTU(t *testing.T) {
	_, err := NewFramer(2)
	assert.ErrorIs(t, err, ErrInvalidMTU)
}

func TestEncode_EmptyMessage(t *testing.T) {
	f := newTestFramer(t)
	chunks := f.Encode(nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte{MarkerStart, 0x00, TerminatorEnd}, chunks[0])
}

func TestEncode_SingleChunk(t *testing.T) {
	f := newTestFramer(t)
	chunks := f.Encode([]byte{0x71, 0x01})
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte{MarkerStart, 0x71, 0x01, 0x72, TerminatorEnd}, chunks[0])
}

func TestEncode_ChunkBoundary(t *testing.T) {
	f := newTestFramer(t)

	// 16 message bytes + checksum fill exactly one 17 byte payload
	assert.Len(t, f.Encode(sequence(16, 1)), 1)

	// one more byte pushes the checksum into a second chunk
	chunks := f.Encode(sequence(17, 1))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultMTU, "first chunk is full")
	assert.Equal(t, []byte{MarkerContinuation, Checksum(sequence(17, 1)), TerminatorEnd}, chunks[1])
}

func TestEncode_MarkerInvariant(t *testing.T) {
	f := newTestFramer(t)
	for _, n := range []int{0, 1, 16, 17, 33, 34, 100, 300} {
		chunks := f.Encode(sequence(n, 0))
		assert.Len(t, chunks, f.ChunkCount(n), "len %d", n)

		ends := 0
		for i, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), DefaultMTU, "len %d chunk %d", n, i)

			wantMarker := byte(MarkerContinuation)
			if i == 0 {
				wantMarker = MarkerStart
			}
			assert.Equal(t, wantMarker, chunk[0], "len %d chunk %d marker", n, i)

			switch chunk[len(chunk)-1] {
			case TerminatorEnd:
				ends++
				assert.Equal(t, len(chunks)-1, i, "len %d: END before the last chunk", n)
			case TerminatorMore:
			default:
				assert.Failf(t, "bad terminator", "len %d chunk %d: 0x%02X", n, i, chunk[len(chunk)-1])
			}
		}
		assert.Equal(t, 1, ends, "len %d: exactly one END", n)
	}
}

func TestEncode_EmbedsChecksum(t *testing.T) {
	f := newTestFramer(t)
	message := sequence(40, 0x80)
	chunks := f.Encode(message)
	last := chunks[len(chunks)-1]
	assert.Equal(t, Checksum(message), last[len(last)-2])
}

func TestEncode_Padding(t *testing.T) {
	f := newTestFramer(t, WithPadding())
	message := []byte{0x70, 0x04, 0x01, 0x07}

	chunks := f.Encode(message)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], DefaultMTU)

	decoded, err := f.Decode(chunks...)
	require.NoError(t, err)
	assert.Equal(t, message, decoded[:len(message)])
	assert.Equal(t, make([]byte, len(decoded)-len(message)), decoded[len(message):], "padding is zero")

	// 16 bytes + checksum already fill the chunk, no padding added
	chunks = f.Encode(sequence(16, 1))
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], DefaultMTU)
}

// ============================================================
// Framer Decode Tests
// ============================================================

func TestDecode_RoundTrip(t *testing.T) {
	f := newTestFramer(t)
	for n := 0; n <= 300; n++ {
		message := sequence(n, byte(n))
		decoded, err := f.Decode(f.Encode(message)...)
		require.NoError(t, err, "len %d", n)
		require.Equal(t, message, decoded, "len %d", n)
	}
}

func TestDecode_NoChunks(t *testing.T) {
	decoded, err := newTestFramer(t).Decode()
	assert.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecode_BadMarkerOnSecondChunk(t *testing.T) {
	f := newTestFramer(t)
	chunks := f.Encode(sequence(40, 0))
	chunks[1][0] = MarkerStart

	_, err := f.Decode(chunks...)
	assert.ErrorIs(t, err, ErrBadMarker)
}

func TestDecode_BadMarkerOnFirstChunk(t *testing.T) {
	f := newTestFramer(t)
	chunk := f.Encode([]byte{0x71, 0x01})[0]
	chunk[0] = MarkerContinuation

	_, err := f.Decode(chunk)
	assert.ErrorIs(t, err, ErrBadMarker)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	f := newTestFramer(t)
	chunks := f.Encode([]byte{0x70, 0x00, 0x01})
	chunks[0][3] ^= 0xFF

	_, err := f.Decode(chunks...)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	lenient := newTestFramer(t, WithoutChecksumVerification())
	decoded, err := lenient.Decode(chunks...)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x70, 0x00, 0xFE}, decoded)
}

func TestDecode_StopsAtEnd(t *testing.T) {
	f := newTestFramer(t)
	chunks := f.Encode([]byte{0x71, 0x05})
	chunks = append(chunks, []byte{0x12, 0x34, 0x56})

	decoded, err := f.Decode(chunks...)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x71, 0x05}, decoded)
}

func TestDecode_LegacyMarkers(t *testing.T) {
	legacy := newTestFramer(t, WithLegacyMarkers())
	message := sequence(50, 3)
	chunks := legacy.Encode(message)
	require.Equal(t, byte(MarkerContinuation), chunks[0][0], "legacy first marker")

	decoded, err := legacy.Decode(chunks...)
	require.NoError(t, err)
	assert.Equal(t, message, decoded)

	_, err = newTestFramer(t).Decode(chunks...)
	assert.ErrorIs(t, err, ErrBadMarker, "standard framer rejects legacy start")
}

// ============================================================
// Reassembler Tests
// ============================================================

func pushAll(t *testing.T, r *Reassembler, chunks [][]byte) ([]byte, bool) {
	t.Helper()
	for i, chunk := range chunks {
		message, done, err := r.Push(chunk)
		require.NoError(t, err, "chunk %d", i)
		if done {
			require.Equal(t, len(chunks)-1, i, "message completed early")
			return message, true
		}
	}
	return nil, false
}

func TestReassembler_InOrder(t *testing.T) {
	f := newTestFramer(t)
	r := NewReassembler(f)
	message := sequence(60, 9)

	decoded, done := pushAll(t, r, f.Encode(message))
	require.True(t, done)
	assert.Equal(t, message, decoded)
	assert.False(t, r.InProgress(), "idle after END")
}

func TestReassembler_StartResets(t *testing.T) {
	f := newTestFramer(t)
	r := NewReassembler(f)

	first := f.Encode(sequence(40, 1))
	_, _, err := r.Push(first[0])
	require.NoError(t, err)

	second := sequence(30, 100)
	decoded, done := pushAll(t, r, f.Encode(second))
	assert.True(t, done)
	assert.Equal(t, second, decoded)
}

func TestReassembler_OrphanContinuation(t *testing.T) {
	f := newTestFramer(t)
	r := NewReassembler(f)
	chunks := f.Encode(sequence(40, 1))

	_, _, err := r.Push(chunks[1])
	assert.ErrorIs(t, err, ErrBadMarker)

	decoded, done := pushAll(t, r, chunks)
	assert.True(t, done, "recovers after orphan")
	assert.Equal(t, sequence(40, 1), decoded)
}

func TestReassembler_TornMessage(t *testing.T) {
	f := newTestFramer(t)
	r := NewReassembler(f)

	a := f.Encode(bytes.Repeat([]byte{0x01}, 40))
	b := f.Encode(bytes.Repeat([]byte{0x02}, 40))

	// first chunk of one transmission, remaining chunks of another
	r.Push(a[0])
	r.Push(b[1])
	_, done, err := r.Push(b[2])
	require.False(t, done, "torn message must not complete")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.False(t, r.InProgress(), "idle after a discarded message")
}

func TestReassembler_Oversize(t *testing.T) {
	f := newTestFramer(t)
	r := NewReassembler(f)
	chunks := f.Encode(make([]byte, MaxMessageSize+50))

	var err error
	for _, chunk := range chunks {
		if _, _, err = r.Push(chunk); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReassembler_BadTerminator(t *testing.T) {
	r := NewReassembler(newTestFramer(t))
	_, _, err := r.Push([]byte{MarkerStart, 0x71, 0x01, 0x72, 0x42})
	assert.ErrorIs(t, err, ErrBadMarker)
}

func TestReassembler_Legacy(t *testing.T) {
	f := newTestFramer(t, WithLegacyMarkers())
	r := NewReassembler(f)
	message := sequence(45, 7)

	decoded, done := pushAll(t, r, f.Encode(message))
	assert.True(t, done)
	assert.Equal(t, message, decoded)
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_RecordError(t *testing.T) {
	s := NewStatistics()
	f := newTestFramer(t)

	chunks := f.Encode([]byte{0x70, 0x00, 0x01})
	chunks[0][2] ^= 0x01
	_, err := f.Decode(chunks...)
	s.RecordError(err)

	_, err = DecodeDebug([]byte{0x70})
	s.RecordError(err)

	_, _, err = NewReassembler(f).Push([]byte{0x01, 0x00})
	s.RecordError(err)

	s.RecordError(nil)

	assert.Equal(t, uint64(1), s.ChecksumErrors)
	assert.Equal(t, uint64(1), s.CodecErrors)
	assert.Equal(t, uint64(1), s.MarkerErrors)
	assert.Equal(t, uint64(3), s.Errors())

	s.Reset()
	assert.Zero(t, s.Errors())
}

func TestStatistics_Snapshot(t *testing.T) {
	s := NewStatistics()
	s.RecordSent(3)
	s.RecordChunk()
	s.RecordMessage()
	s.RecordResend()
	s.RecordTimeout()
	s.RecordError(ErrBadMarker)

	assert.Equal(t, Counters{
		ChunksSent:       3,
		ChunksReceived:   1,
		MessagesSent:     1,
		MessagesReceived: 1,
		Errors:           1,
		Resends:          1,
		Timeouts:         1,
	}, s.Snapshot())
}
