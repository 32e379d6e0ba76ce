// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	timestamp := m.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (%d) seq=%d sys=%d comp=%d len=%d ck=0x%04X\n",
		timestamp, FormatMessageType(m.id), m.id, m.seq, m.systemID, m.componentID, m.length, m.checksum)
	return result + FormatPayload(m)
}

// FormatMessageType returns the human-readable name for a message id
func FormatMessageType(id uint8) string {
	switch id {
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgSysStatus:
		return "SYS_STATUS"
	case MsgSystemTime:
		return "SYSTEM_TIME"
	case MsgGPSRawInt:
		return "GPS_RAW_INT"
	case MsgRawIMU:
		return "RAW_IMU"
	case MsgScaledPressure:
		return "SCALED_PRESSURE"
	case MsgAttitude:
		return "ATTITUDE"
	case MsgLocalPositionNED:
		return "LOCAL_POSITION_NED"
	case MsgGlobalPositionInt:
		return "GLOBAL_POSITION_INT"
	case MsgRCChannelsRaw:
		return "RC_CHANNELS_RAW"
	case MsgServoOutputRaw:
		return "SERVO_OUTPUT_RAW"
	case MsgRequestDataStream:
		return "REQUEST_DATA_STREAM"
	case MsgVFRHud:
		return "VFR_HUD"
	case MsgCommandLong:
		return "COMMAND_LONG"
	case MsgStatusText:
		return "STATUSTEXT"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the payload of the decoded message kinds and falls
// back to a hex dump for everything else.
func FormatPayload(m *Message) string {
	switch m.id {
	case MsgHeartbeat:
		if hb, err := DecodeHeartbeat(m); err == nil {
			armed := "No"
			if hb.BaseMode&MavModeFlagSafetyArm != 0 {
				armed = "Yes"
			}
			return fmt.Sprintf("  Type: %d, Autopilot: %d, Mode: 0x%02X (custom %d), Armed: %s, Status: %d, Version: %d\n",
				hb.Type, hb.Autopilot, hb.BaseMode, hb.CustomMode, armed, hb.SystemStatus, hb.MavlinkVersion)
		}

	case MsgAttitude:
		if att, err := DecodeAttitude(m); err == nil {
			return fmt.Sprintf("  Roll: %s, Pitch: %s, Yaw: %s\n  Rates: %.3f, %.3f, %.3f rad/s, Boot: %s\n",
				formatAngle(att.Roll), formatAngle(att.Pitch), formatAngle(att.Yaw),
				att.RollSpeed, att.PitchSpeed, att.YawSpeed, formatDuration(uint64(att.TimeBootMs)))
		}

	case MsgRequestDataStream:
		if req, err := DecodeRequestDataStream(m); err == nil {
			action := "stop"
			if req.StartStop != 0 {
				action = "start"
			}
			return fmt.Sprintf("  Stream: %s (%d), Rate: %d Hz, Target: %d/%d, Action: %s\n",
				FormatDataStream(req.StreamID), req.StreamID, req.MessageRate,
				req.TargetSystem, req.TargetComponent, action)
		}
	}

	if m.length == 0 {
		return "  (no payload)\n"
	}

	var b strings.Builder
	b.WriteString("  Payload: ")
	for i, c := range m.payload[:m.length] {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", c)
	}
	b.WriteString("\n")
	return b.String()
}

// FormatDataStream returns the name of a MAV_DATA_STREAM id
func FormatDataStream(id uint8) string {
	switch id {
	case DataStreamAll:
		return "ALL"
	case DataStreamRawSensors:
		return "RAW_SENSORS"
	case DataStreamExtStatus:
		return "EXTENDED_STATUS"
	case DataStreamRCChannels:
		return "RC_CHANNELS"
	case DataStreamRawRC:
		return "RAW_CONTROLLER"
	case DataStreamPosition:
		return "POSITION"
	case DataStreamExtra1:
		return "EXTRA1"
	case DataStreamExtra2:
		return "EXTRA2"
	case DataStreamExtra3:
		return "EXTRA3"
	default:
		return "UNKNOWN"
	}
}

// ParseDataStream accepts a stream name as printed by FormatDataStream (any
// case) or a numeric id.
func ParseDataStream(s string) (uint8, bool) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return uint8(n), true
	}
	for id := DataStreamAll; id <= DataStreamExtra3; id++ {
		name := FormatDataStream(uint8(id))
		if name != "UNKNOWN" && strings.EqualFold(name, s) {
			return uint8(id), true
		}
	}
	return 0, false
}

func formatAngle(rad float32) string {
	return fmt.Sprintf("%.4f rad (%.1f°)", rad, float64(rad)*180/math.Pi)
}

// formatDuration converts milliseconds to human-readable duration
func formatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	parts := []string{}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + last
}

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
