// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import "errors"

// Framing errors
var (
	ErrBadMarker        = errors.New("aipp: bad chunk marker")
	ErrChecksumMismatch = errors.New("aipp: checksum mismatch")
	ErrMessageTooLarge  = errors.New("aipp: message exceeds max size")
	ErrInvalidMTU       = errors.New("aipp: invalid mtu")
)

// Codec errors
var (
	ErrTruncated       = errors.New("aipp: truncated message")
	ErrMalformed       = errors.New("aipp: malformed message")
	ErrUnknownType     = errors.New("aipp: unknown message type")
	ErrUnsupportedType = errors.New("aipp: unsupported variable type")
)

// IsFrameError reports whether err came from chunk framing or reassembly
func IsFrameError(err error) bool {
	return errors.Is(err, ErrBadMarker) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrMessageTooLarge)
}

// IsCodecError reports whether err came from message decoding
func IsCodecError(err error) bool {
	return errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnknownType)
}
