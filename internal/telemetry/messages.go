// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry carries pipeline outputs off the device: JSON over MQTT
// and $PTILT sentences over a serial line.
package telemetry

import (
	"time"

	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

// PoseMessage is the JSON payload on the pose topic.
type PoseMessage struct {
	Tick    uint64    `json:"tick"`
	Time    time.Time `json:"time"`
	Pitch   float64   `json:"pitch"`
	Roll    float64   `json:"roll"`
	Skipped bool      `json:"skipped,omitempty"`
}

// RawMessage is the JSON payload on the raw IMU topic.
type RawMessage struct {
	Tick uint64        `json:"tick"`
	Time time.Time     `json:"time"`
	Raw  imu.RawSample `json:"raw"`
}

// NewPoseMessage extracts the pose part of a tick output.
func NewPoseMessage(out pipeline.Output) PoseMessage {
	return PoseMessage{
		Tick:    out.Tick,
		Time:    out.Time,
		Pitch:   out.Pose.Pitch,
		Roll:    out.Pose.Roll,
		Skipped: out.Skipped,
	}
}
