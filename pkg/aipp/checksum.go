// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

// Checksum returns the sum of all bytes modulo 256
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
