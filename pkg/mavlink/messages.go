// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnexpectedMessage is returned when decoding a message as the wrong kind
	ErrUnexpectedMessage = errors.New("unexpected message id")

	// ErrShortPayload is returned when a payload is shorter than its wire layout
	ErrShortPayload = errors.New("payload too short")
)

// MAV_TYPE / MAV_AUTOPILOT values we emit or print
const (
	MavTypeGeneric       = 0
	MavTypeQuadrotor     = 2
	MavTypeGCS           = 6
	MavAutopilotGeneric  = 0
	MavAutopilotInvalid  = 8
	MavStateStandby      = 3
	MavStateActive       = 4
	MavModeFlagSafetyArm = 0x80
)

// Heartbeat is the HEARTBEAT message (id 0)
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

// MessageID implements Payload
func (Heartbeat) MessageID() uint8 { return MsgHeartbeat }

// MarshalPayload implements Payload
func (h Heartbeat) MarshalPayload() []byte {
	b := make([]byte, HeartbeatLength)
	binary.LittleEndian.PutUint32(b[0:4], h.CustomMode)
	b[4] = h.Type
	b[5] = h.Autopilot
	b[6] = h.BaseMode
	b[7] = h.SystemStatus
	b[8] = h.MavlinkVersion
	return b
}

// DecodeHeartbeat extracts a HEARTBEAT payload
func DecodeHeartbeat(m *Message) (Heartbeat, error) {
	p, err := payloadOf(m, MsgHeartbeat, HeartbeatLength)
	if err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(p[0:4]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}, nil
}

// Attitude is the ATTITUDE message (id 30). Angles are radians, rates rad/s.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

// MessageID implements Payload
func (Attitude) MessageID() uint8 { return MsgAttitude }

// MarshalPayload implements Payload
func (a Attitude) MarshalPayload() []byte {
	b := make([]byte, AttitudeLength)
	binary.LittleEndian.PutUint32(b[0:4], a.TimeBootMs)
	for i, f := range []float32{a.Roll, a.Pitch, a.Yaw, a.RollSpeed, a.PitchSpeed, a.YawSpeed} {
		binary.LittleEndian.PutUint32(b[4+i*4:8+i*4], math.Float32bits(f))
	}
	return b
}

// DecodeAttitude extracts an ATTITUDE payload
func DecodeAttitude(m *Message) (Attitude, error) {
	p, err := payloadOf(m, MsgAttitude, AttitudeLength)
	if err != nil {
		return Attitude{}, err
	}
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[off : off+4]))
	}
	return Attitude{
		TimeBootMs: binary.LittleEndian.Uint32(p[0:4]),
		Roll:       f(4),
		Pitch:      f(8),
		Yaw:        f(12),
		RollSpeed:  f(16),
		PitchSpeed: f(20),
		YawSpeed:   f(24),
	}, nil
}

// RequestDataStream is the REQUEST_DATA_STREAM message (id 66)
type RequestDataStream struct {
	MessageRate     uint16
	TargetSystem    uint8
	TargetComponent uint8
	StreamID        uint8
	StartStop       uint8
}

// NewRequestDataStream creates a request to start (or stop) a data stream
// at rate Hz on any target.
func NewRequestDataStream(stream uint8, rate uint16, start bool) RequestDataStream {
	r := RequestDataStream{MessageRate: rate, StreamID: stream}
	if start {
		r.StartStop = 1
	}
	return r
}

// MessageID implements Payload
func (RequestDataStream) MessageID() uint8 { return MsgRequestDataStream }

// MarshalPayload implements Payload
func (r RequestDataStream) MarshalPayload() []byte {
	b := make([]byte, RequestDataStreamLength)
	binary.LittleEndian.PutUint16(b[0:2], r.MessageRate)
	b[2] = r.TargetSystem
	b[3] = r.TargetComponent
	b[4] = r.StreamID
	b[5] = r.StartStop
	return b
}

// DecodeRequestDataStream extracts a REQUEST_DATA_STREAM payload
func DecodeRequestDataStream(m *Message) (RequestDataStream, error) {
	p, err := payloadOf(m, MsgRequestDataStream, RequestDataStreamLength)
	if err != nil {
		return RequestDataStream{}, err
	}
	return RequestDataStream{
		MessageRate:     binary.LittleEndian.Uint16(p[0:2]),
		TargetSystem:    p[2],
		TargetComponent: p[3],
		StreamID:        p[4],
		StartStop:       p[5],
	}, nil
}

func payloadOf(m *Message, id uint8, length int) ([]byte, error) {
	if m.id != id {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedMessage, m.id, id)
	}
	if int(m.length) < length {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrShortPayload, FormatMessageType(id), m.length, length)
	}
	return m.payload[:m.length], nil
}

// StreamMessages lists the message ids a data stream carries, as ArduPilot
// groups them. DataStreamAll and unknown streams return nil.
func StreamMessages(stream uint8) []uint8 {
	switch stream {
	case DataStreamRawSensors:
		return []uint8{MsgRawIMU, MsgScaledPressure}
	case DataStreamExtStatus:
		return []uint8{MsgSysStatus, MsgGPSRawInt}
	case DataStreamRCChannels:
		return []uint8{MsgRCChannelsRaw, MsgServoOutputRaw}
	case DataStreamPosition:
		return []uint8{MsgGlobalPositionInt, MsgLocalPositionNED}
	case DataStreamExtra1:
		return []uint8{MsgAttitude}
	case DataStreamExtra2:
		return []uint8{MsgVFRHud}
	case DataStreamExtra3:
		return []uint8{MsgSystemTime}
	}
	return nil
}
