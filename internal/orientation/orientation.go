// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"math"
)

// Filter constants. The fusion weights are per tick at SampleRate; other
// rates go through FusionWeights.
const (
	// SampleRate is the nominal tick rate in Hz.
	SampleRate = 250.0

	// GyroWeight and AccelWeight blend the integrated angle with the
	// accelerometer tilt each tick.
	GyroWeight  = 0.9996
	AccelWeight = 0.0004

	// OutputRetain and OutputGain form the first-order low-pass on the
	// published angle.
	OutputRetain = 0.9
	OutputGain   = 0.1

	// RadToDeg is 180/π rounded to three decimals.
	RadToDeg = 57.296
	// DegToRad converts the per-tick yaw increment to radians.
	DegToRad = math.Pi / 180
)

// FusionWeights returns the per-tick gyro and accelerometer weights for a
// tick rate in Hz. The gyro weight is rescaled so one second of ticks decays
// the integrated angle by GyroWeight^SampleRate at any rate.
func FusionWeights(rate float64) (gyro, accel float64) {
	if rate <= 0 || rate == SampleRate {
		return GyroWeight, AccelWeight
	}
	gyro = math.Pow(GyroWeight, SampleRate/rate)
	return gyro, 1 - gyro
}

// ErrDegenerateVector is returned when the accelerometer reads a zero vector
// and no tilt can be derived from it.
var ErrDegenerateVector = errors.New("orientation: accelerometer vector has zero magnitude")

// Pose is the canonical representation of orientation for the app.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Tilt computes pitch and roll in degrees from the direction of the gravity
// vector. Inputs may be in any unit, including raw counts, because only
// their ratio to the vector magnitude matters:
//
//	pitch = asin(ay / |a|) · 57.296
//	roll  = asin(ax / |a|) · -57.296
func Tilt(ax, ay, az float64) (pitch, roll float64, err error) {
	total := math.Sqrt(ax*ax + ay*ay + az*az)
	if total == 0 || math.IsNaN(total) {
		return 0, 0, ErrDegenerateVector
	}
	pitch = math.Asin(clampUnit(ay/total)) * RadToDeg
	roll = math.Asin(clampUnit(ax/total)) * -RadToDeg
	return pitch, roll, nil
}

// clampUnit keeps rounding error from pushing an asin argument past ±1.
func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
