// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"math"
)

// OneG is the accelerometer count for 1 g at the ±2 g range.
const OneG = 16384

// ReferenceTempCount is the TEMP_OUT reading for 25 °C, where temperature
// compensation is the identity.
const ReferenceTempCount = -3920

// Motion returns the body tilt in degrees for the n-th sample.
type Motion func(n int) (pitch, roll float64)

// SimSource synthesizes raw samples for a rigid body following Motion.
// Gyro counts are the finite-difference tilt rate plus GyroBias, so a
// stationary SimSource reports exactly GyroBias on every axis.
type SimSource struct {
	Motion    Motion
	Rate      float64  // samples per second
	GyroScale float64  // counts per °/s
	OneG      float64  // counts per g
	GyroBias  [3]int16 // x, y, z
	YawRate   float64  // °/s about z, added to gz
	Temp      int16

	n int
}

// NewStillSource returns a motionless source at a fixed tilt.
func NewStillSource(pitch, roll float64, bias [3]int16) *SimSource {
	return &SimSource{
		Motion:    func(int) (float64, float64) { return pitch, roll },
		Rate:      250,
		GyroScale: 131,
		OneG:      OneG,
		GyroBias:  bias,
		Temp:      ReferenceTempCount,
	}
}

// NewWobbleSource returns a source that rocks smoothly in pitch and roll.
func NewWobbleSource(bias [3]int16) *SimSource {
	s := NewStillSource(0, 0, bias)
	s.Motion = func(n int) (float64, float64) {
		elapsed := float64(n) / s.Rate
		return 15 * math.Cos(elapsed*0.7), 20 * math.Sin(elapsed)
	}
	return s
}

// NextRaw implements Source.
func (s *SimSource) NextRaw(ctx context.Context) (RawSample, error) {
	if err := ctx.Err(); err != nil {
		return RawSample{}, err
	}
	pitch, roll := s.Motion(s.n)
	prevPitch, prevRoll := pitch, roll
	if s.n > 0 {
		prevPitch, prevRoll = s.Motion(s.n - 1)
	}
	s.n++

	const degToRad = math.Pi / 180
	ay := math.Sin(pitch*degToRad) * s.OneG
	ax := -math.Sin(roll*degToRad) * s.OneG
	az := math.Sqrt(math.Max(s.OneG*s.OneG-ax*ax-ay*ay, 0))

	gx := (pitch - prevPitch) * s.Rate * s.GyroScale
	gy := (roll - prevRoll) * s.Rate * s.GyroScale
	gz := s.YawRate * s.GyroScale

	return RawSample{
		Ax:   clamp16(ax),
		Ay:   clamp16(ay),
		Az:   clamp16(az),
		Temp: s.Temp,
		Gx:   clamp16(gx + float64(s.GyroBias[0])),
		Gy:   clamp16(gy + float64(s.GyroBias[1])),
		Gz:   clamp16(gz + float64(s.GyroBias[2])),
	}, nil
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
