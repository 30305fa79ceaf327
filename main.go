// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors
//
// aipp - Hub debug tunnel tools
//
// A CLI for debugging and plotting programs on hubs that expose a single
// shared value slot to the host.

package main

import (
	"os"

	"github.com/blocklypy/aipp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
