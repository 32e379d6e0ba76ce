// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidAngle
	AnomalyInvalidRate
	AnomalyInvalidValue
	AnomalySequenceGap
)

// String returns a short name for the anomaly
func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "length_mismatch"
	case AnomalyInvalidAngle:
		return "invalid_angle"
	case AnomalyInvalidRate:
		return "invalid_rate"
	case AnomalyInvalidValue:
		return "invalid_value"
	case AnomalySequenceGap:
		return "sequence_gap"
	default:
		return "unknown"
	}
}

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// maxAngularRate bounds plausible body rates (rad/s), about 5700 deg/s.
const maxAngularRate = 100.0

// ValidateMessage checks the payload of known message kinds for anomalies.
// Returns a slice of validation errors (empty if the message looks sane).
func ValidateMessage(m *Message) []ValidationError {
	switch m.id {
	case MsgHeartbeat:
		return validateHeartbeat(m)
	case MsgAttitude:
		return validateAttitude(m)
	case MsgRequestDataStream:
		return validateLength(m, RequestDataStreamLength)
	}
	return nil
}

func validateLength(m *Message, want int) []ValidationError {
	if int(m.length) == want {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload length mismatch (%d bytes, expected %d)", FormatMessageType(m.id), m.length, want),
		Details: map[string]interface{}{"length": m.length, "expected": want},
	}}
}

func validateHeartbeat(m *Message) []ValidationError {
	if errs := validateLength(m, HeartbeatLength); errs != nil {
		return errs
	}
	hb, _ := DecodeHeartbeat(m)
	if hb.MavlinkVersion != MavlinkVersion {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Unexpected mavlink_version=%d (expected %d)", hb.MavlinkVersion, MavlinkVersion),
			Details: map[string]interface{}{"version": hb.MavlinkVersion, "expected": MavlinkVersion},
		}}
	}
	return nil
}

func validateAttitude(m *Message) []ValidationError {
	if errs := validateLength(m, AttitudeLength); errs != nil {
		return errs
	}
	att, _ := DecodeAttitude(m)
	errors := []ValidationError{}

	angles := []struct {
		name  string
		value float32
	}{{"roll", att.Roll}, {"pitch", att.Pitch}, {"yaw", att.Yaw}}
	for _, a := range angles {
		v := float64(a.value)
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 2*math.Pi {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidAngle,
				Message: fmt.Sprintf("%s out of range (%g rad, valid: ±2π)", a.name, v),
				Details: map[string]interface{}{"field": a.name, "value": v},
			})
		}
	}

	for _, r := range []float32{att.RollSpeed, att.PitchSpeed, att.YawSpeed} {
		v := float64(r)
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxAngularRate {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidRate,
				Message: fmt.Sprintf("Angular rate out of range (%g rad/s, max %g)", v, maxAngularRate),
				Details: map[string]interface{}{"value": v, "max": maxAngularRate},
			})
		}
	}

	return errors
}
