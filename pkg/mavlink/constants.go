// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mavlink implements the MAVLink v1 framing used by gyrobridge.
//
// This is not a general MAVLink library. It reconstructs frames from a byte
// stream, encodes outgoing frames, and decodes the handful of messages the
// bridge needs: HEARTBEAT, ATTITUDE and REQUEST_DATA_STREAM.
//
// Wire format:
//
//	[0xFE][len][seq][sysid][compid][msgid][payload: len bytes][ck_a][ck_b]
package mavlink

// Protocol framing
const (
	StartByte = 0xFE

	// HeaderSize counts the bytes after the start marker.
	HeaderSize   = 5
	ChecksumSize = 2

	// MaxPayloadSize is the capacity of the payload buffer; the length byte
	// cannot declare more than this.
	MaxPayloadSize = 255
	MaxFrameSize   = 1 + HeaderSize + MaxPayloadSize + ChecksumSize
)

// Identity used for frames we originate
const (
	SystemID    = 1
	ComponentID = MavCompIDSystemControl
)

// Component ids
const (
	MavCompIDAll           = 0
	MavCompIDSystemControl = 250
)

// Message ids
const (
	MsgHeartbeat         = 0
	MsgSysStatus         = 1
	MsgSystemTime        = 2
	MsgGPSRawInt         = 24
	MsgRawIMU            = 27
	MsgScaledPressure    = 29
	MsgAttitude          = 30
	MsgLocalPositionNED  = 32
	MsgGlobalPositionInt = 33
	MsgRCChannelsRaw     = 35
	MsgServoOutputRaw    = 36
	MsgRequestDataStream = 66
	MsgVFRHud            = 74
	MsgCommandLong       = 76
	MsgStatusText        = 253
)

// Payload lengths of the decoded messages
const (
	HeartbeatLength         = 9
	AttitudeLength          = 28
	RequestDataStreamLength = 6
)

// Data stream ids for REQUEST_DATA_STREAM
const (
	DataStreamAll        = 0
	DataStreamRawSensors = 1
	DataStreamExtStatus  = 2
	DataStreamRCChannels = 3
	DataStreamRawRC      = 4
	DataStreamPosition   = 6
	DataStreamExtra1     = 10
	DataStreamExtra2     = 11
	DataStreamExtra3     = 12
)

// MavlinkVersion is the protocol version a v1 heartbeat reports.
const MavlinkVersion = 3

// crcExtra holds the per-message CRC_EXTRA seed mixed into the X.25 checksum.
// Only needed in strict checksum mode; ids missing here are accepted as-is.
var crcExtra = map[uint8]uint8{
	MsgHeartbeat:         50,
	MsgSysStatus:         124,
	MsgSystemTime:        137,
	MsgGPSRawInt:         24,
	MsgRawIMU:            144,
	MsgScaledPressure:    115,
	MsgAttitude:          39,
	MsgLocalPositionNED:  185,
	MsgGlobalPositionInt: 104,
	MsgRCChannelsRaw:     244,
	MsgServoOutputRaw:    222,
	MsgRequestDataStream: 148,
	MsgVFRHud:            20,
	MsgCommandLong:       152,
	MsgStatusText:        83,
}

// CRCExtra returns the CRC_EXTRA byte for a message id.
func CRCExtra(id uint8) (uint8, bool) {
	extra, ok := crcExtra[id]
	return extra, ok
}
