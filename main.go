// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gyrobridge - MAVLink attitude bridge
//
// Reads heartbeats and attitude from a vehicle over serial, TCP or WebSocket
// and forwards roll, pitch and yaw to a local HTTP API.

package main

import (
	"os"

	"github.com/Thermoquad/gyrobridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
