// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import "github.com/sigurn/crc16"

// MAVLink's X.25 checksum is CRC-16/MCRF4XX: reflected 0x1021, init 0xFFFF,
// no final xor.
var x25Table = crc16.MakeTable(crc16.CRC16_MCRF4XX)

// CalculateCRC computes the X.25 checksum of data
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, x25Table)
}

// frameChecksum covers the header after the start marker, the payload and,
// when known, the message's CRC_EXTRA byte.
func frameChecksum(header, payload []byte, id uint8) uint16 {
	crc := crc16.Init(x25Table)
	crc = crc16.Update(crc, header, x25Table)
	crc = crc16.Update(crc, payload, x25Table)
	if extra, ok := crcExtra[id]; ok {
		crc = crc16.Update(crc, []byte{extra}, x25Table)
	}
	return crc16.Complete(crc, x25Table)
}
